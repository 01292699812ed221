package api

import (
	"context"
	"net/http"
	"net/url"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicsync-fe/models"
)

// NewIssue is the body of an issue submission.
type NewIssue struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    models.IssueCategory `json:"category"`
	Location    string               `json:"location"`
	Images      []string             `json:"images"`
	Reporter    models.Identity      `json:"reporter"`
}

// IssuePatch carries the fields a reporter may change on a Pending issue.
type IssuePatch struct {
	Title       *string               `json:"title,omitempty"`
	Description *string               `json:"description,omitempty"`
	Category    *models.IssueCategory `json:"category,omitempty"`
	Location    *string               `json:"location,omitempty"`
	Images      []string              `json:"images,omitempty"`
}

func (c *Client) ListIssues(ctx context.Context) ([]models.Issue, error) {
	body, err := c.do(ctx, http.MethodGet, "/issues", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Issue](body, "issues")
}

func (c *Client) ListIssuesByReporter(ctx context.Context, email string) ([]models.Issue, error) {
	body, err := c.do(ctx, http.MethodGet, "/issues", url.Values{"email": {email}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Issue](body, "issues")
}

func (c *Client) ListIssuesByStaff(ctx context.Context, staffEmail string) ([]models.Issue, error) {
	body, err := c.do(ctx, http.MethodGet, "/issues", url.Values{"staffEmail": {staffEmail}}, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[models.Issue](body, "issues")
}

func (c *Client) GetIssue(ctx context.Context, id primitive.ObjectID) (models.Issue, error) {
	body, err := c.do(ctx, http.MethodGet, "/issues/"+id.Hex(), nil, nil)
	if err != nil {
		return models.Issue{}, err
	}
	return decodeOne[models.Issue](body, "issue")
}

func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (Ack, error) {
	return c.write(ctx, http.MethodPost, "/issues", issue, writeCreate)
}

func (c *Client) UpdateIssue(ctx context.Context, id primitive.ObjectID, patch IssuePatch) (Ack, error) {
	return c.write(ctx, http.MethodPatch, "/issues/"+id.Hex(), patch, writeUpdate)
}

func (c *Client) DeleteIssue(ctx context.Context, id primitive.ObjectID) (Ack, error) {
	return c.write(ctx, http.MethodDelete, "/issues/"+id.Hex(), nil, writeDelete)
}

func (c *Client) UpvoteIssue(ctx context.Context, id primitive.ObjectID, voterEmail string) (Ack, error) {
	return c.write(ctx, http.MethodPatch, "/issues/"+id.Hex()+"/upvote", map[string]string{"email": voterEmail}, writeUpdate)
}

func (c *Client) AssignStaff(ctx context.Context, id primitive.ObjectID, staff models.Staff) (Ack, error) {
	body := map[string]any{
		"staffId": staff.ID.Hex(),
		"staff":   staff.Identity(),
	}
	return c.write(ctx, http.MethodPatch, "/issues/"+id.Hex()+"/assign", body, writeUpdate)
}

func (c *Client) RejectIssue(ctx context.Context, id primitive.ObjectID, note, by string) (Ack, error) {
	body := map[string]string{"note": note, "by": by}
	return c.write(ctx, http.MethodPatch, "/issues/"+id.Hex()+"/reject", body, writeUpdate)
}

func (c *Client) ChangeStatus(ctx context.Context, id primitive.ObjectID, status models.IssueStatus, note, by string) (Ack, error) {
	body := map[string]string{"status": string(status), "note": note, "by": by}
	return c.write(ctx, http.MethodPatch, "/issues/"+id.Hex()+"/status", body, writeUpdate)
}

func (c *Client) write(ctx context.Context, method, path string, payload any, kind writeKind) (Ack, error) {
	body, err := c.do(ctx, method, path, nil, payload)
	if err != nil {
		return Ack{}, err
	}
	return parseAck(body, kind)
}
