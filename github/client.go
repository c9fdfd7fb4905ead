// Package github is a thin client for the GitHub GraphQL API,
// covering the Projects v2 operations the migration needs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"gh-projects-migrate/fields"
	"gh-projects-migrate/projects"
)

var ErrNotFound = errors.New("not found")

const (
	// DefaultEndpoint is the public GitHub GraphQL endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"

	apiVersion = "2022-11-28"
)

// Client wraps the GitHub GraphQL HTTP client.
type Client struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client

	mu         sync.Mutex
	projectIDs map[string]string // "owner/number" -> project node ID
}

// NewClient creates a new GitHub API client.
func NewClient(token string) *Client {
	return &Client{
		Endpoint:   DefaultEndpoint,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		projectIDs: make(map[string]string),
	}
}

// WithEndpoint returns a new client pointed at a different GraphQL
// endpoint (GitHub Enterprise, tests).
func (c *Client) WithEndpoint(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		Token:      c.Token,
		HTTPClient: c.HTTPClient,
		projectIDs: make(map[string]string),
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// do posts one GraphQL request and decodes the data envelope into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graphql request failed, status: %s, body: %s", resp.Status, respBody)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		first := envelope.Errors[0]
		if first.Type == "NOT_FOUND" {
			return fmt.Errorf("%s: %w", first.Message, ErrNotFound)
		}
		return fmt.Errorf("graphql: %s", first.Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

const queryOrganizationID = `
query($login: String!) {
  organization(login: $login) { id }
}`

const queryProjectID = `
query($owner: String!, $number: Int!) {
  organization(login: $owner) {
    projectV2(number: $number) { id }
  }
}`

// projectID resolves (and caches) the node ID of a project from its
// owner login and number.
func (c *Client) projectID(ctx context.Context, owner string, number int) (string, error) {
	key := fmt.Sprintf("%s/%d", owner, number)
	c.mu.Lock()
	id, ok := c.projectIDs[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var data struct {
		Organization struct {
			ProjectV2 struct {
				ID string `json:"id"`
			} `json:"projectV2"`
		} `json:"organization"`
	}
	err := c.do(ctx, queryProjectID, map[string]any{"owner": owner, "number": number}, &data)
	if err != nil {
		return "", err
	}
	if data.Organization.ProjectV2.ID == "" {
		return "", fmt.Errorf("project %s/%d: %w", owner, number, ErrNotFound)
	}

	c.mu.Lock()
	c.projectIDs[key] = data.Organization.ProjectV2.ID
	c.mu.Unlock()
	return data.Organization.ProjectV2.ID, nil
}

func (c *Client) organizationID(ctx context.Context, login string) (string, error) {
	var data struct {
		Organization struct {
			ID string `json:"id"`
		} `json:"organization"`
	}
	if err := c.do(ctx, queryOrganizationID, map[string]any{"login": login}, &data); err != nil {
		return "", err
	}
	if data.Organization.ID == "" {
		return "", fmt.Errorf("organization %s: %w", login, ErrNotFound)
	}
	return data.Organization.ID, nil
}

const mutationCopyProject = `
mutation($projectId: ID!, $ownerId: ID!, $title: String!) {
  copyProjectV2(input: {projectId: $projectId, ownerId: $ownerId, title: $title}) {
    projectV2 { id number }
  }
}`

// CopyResult identifies a freshly copied project on the target side.
type CopyResult struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
}

// CopyProject copies the structure of a source project into the
// target organization and returns the new project's identifiers.
// Items are not copied; the migrator re-adds them one by one.
func (c *Client) CopyProject(ctx context.Context, sourceOwner string, sourceNumber int, targetOwner, title string) (*CopyResult, error) {
	sourceID, err := c.projectID(ctx, sourceOwner, sourceNumber)
	if err != nil {
		return nil, fmt.Errorf("resolve source project: %w", err)
	}
	ownerID, err := c.organizationID(ctx, targetOwner)
	if err != nil {
		return nil, fmt.Errorf("resolve target owner: %w", err)
	}

	var data struct {
		CopyProjectV2 struct {
			ProjectV2 CopyResult `json:"projectV2"`
		} `json:"copyProjectV2"`
	}
	err = c.do(ctx, mutationCopyProject, map[string]any{
		"projectId": sourceID,
		"ownerId":   ownerID,
		"title":     title,
	}, &data)
	if err != nil {
		return nil, err
	}
	res := data.CopyProjectV2.ProjectV2
	if res.ID == "" {
		return nil, fmt.Errorf("copy of project %s/%d returned no project", sourceOwner, sourceNumber)
	}

	c.mu.Lock()
	c.projectIDs[fmt.Sprintf("%s/%d", targetOwner, res.Number)] = res.ID
	c.mu.Unlock()
	return &res, nil
}

const queryProjectFields = `
query($owner: String!, $number: Int!) {
  organization(login: $owner) {
    projectV2(number: $number) {
      fields(first: 100) {
        nodes {
          ... on ProjectV2FieldCommon { id name dataType }
          ... on ProjectV2SingleSelectField { options { id name } }
          ... on ProjectV2IterationField {
            configuration { iterations { id title startDate duration } }
          }
        }
      }
    }
  }
}`

// ProjectFields lists the field definitions of a project, in schema
// order.
func (c *Client) ProjectFields(ctx context.Context, owner string, number int) ([]projects.FieldDef, error) {
	var data struct {
		Organization struct {
			ProjectV2 struct {
				Fields struct {
					Nodes []projects.FieldDef `json:"nodes"`
				} `json:"fields"`
			} `json:"projectV2"`
		} `json:"organization"`
	}
	err := c.do(ctx, queryProjectFields, map[string]any{"owner": owner, "number": number}, &data)
	if err != nil {
		return nil, err
	}
	return data.Organization.ProjectV2.Fields.Nodes, nil
}

const queryResourceID = `
query($url: URI!) {
  resource(url: $url) {
    ... on Issue { id }
    ... on PullRequest { id }
  }
}`

const mutationAddItem = `
mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

// AddItem puts the issue or pull request behind issueURL onto the
// given target project and returns the new project item's ID.
func (c *Client) AddItem(ctx context.Context, targetOwner string, targetNumber int, issueURL string) (string, error) {
	projectID, err := c.projectID(ctx, targetOwner, targetNumber)
	if err != nil {
		return "", fmt.Errorf("resolve target project: %w", err)
	}

	var resource struct {
		Resource struct {
			ID string `json:"id"`
		} `json:"resource"`
	}
	if err := c.do(ctx, queryResourceID, map[string]any{"url": issueURL}, &resource); err != nil {
		return "", fmt.Errorf("resolve %s: %w", issueURL, err)
	}
	if resource.Resource.ID == "" {
		return "", fmt.Errorf("resolve %s: %w", issueURL, ErrNotFound)
	}

	var data struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	err = c.do(ctx, mutationAddItem, map[string]any{
		"projectId": projectID,
		"contentId": resource.Resource.ID,
	}, &data)
	if err != nil {
		return "", err
	}
	if data.AddProjectV2ItemByID.Item.ID == "" {
		return "", fmt.Errorf("add %s returned no item", issueURL)
	}
	return data.AddProjectV2ItemByID.Item.ID, nil
}

const mutationUpdateItemField = `
mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
  updateProjectV2ItemFieldValue(input: {projectId: $projectId, itemId: $itemId, fieldId: $fieldId, value: $value}) {
    projectV2Item { id }
  }
}`

// UpdateItemField writes one resolved field value onto a project
// item. The payload shape follows the update's Kind.
func (c *Client) UpdateItemField(ctx context.Context, projectID, itemID, fieldID string, upd fields.Update) error {
	var value map[string]any
	switch upd.Kind {
	case fields.KindSingleSelect:
		value = map[string]any{"singleSelectOptionId": upd.OptionID}
	case fields.KindIteration:
		value = map[string]any{"iterationId": upd.IterationID}
	case fields.KindNumber:
		value = map[string]any{"number": upd.Number}
	case fields.KindDate:
		value = map[string]any{"date": upd.Date}
	default:
		value = map[string]any{"text": upd.Text}
	}
	return c.do(ctx, mutationUpdateItemField, map[string]any{
		"projectId": projectID,
		"itemId":    itemID,
		"fieldId":   fieldID,
		"value":     value,
	}, nil)
}
