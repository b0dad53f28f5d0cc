package mcptool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"pkt.systems/querydesk/schema"
)

type stubPipeline struct {
	result schema.Result
	user   schema.UserID
	query  string
}

func (s *stubPipeline) Process(_ context.Context, userID schema.UserID, query string) schema.Result {
	s.user = userID
	s.query = query
	return s.result
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAskDefinition(t *testing.T) {
	def := NewAskTool(&stubPipeline{}).Definition()
	if def.Name != "ask" {
		t.Fatalf("unexpected name %q", def.Name)
	}
	if len(def.InputSchema.Required) != 2 {
		t.Fatalf("expected username and query to be required, got %v", def.InputSchema.Required)
	}
}

func TestAskRequiresArguments(t *testing.T) {
	tool := NewAskTool(&stubPipeline{})
	for _, args := range []map[string]any{{"query": "hi"}, {"username": "admin"}, {"username": " ", "query": "hi"}} {
		res, err := tool.Handle(context.Background(), makeReq(args))
		if err != nil {
			t.Fatalf("unexpected Go error: %v", err)
		}
		if !res.IsError {
			t.Fatalf("expected tool error for %v", args)
		}
	}
}

func TestAskText(t *testing.T) {
	pipeline := &stubPipeline{result: schema.Success(schema.ActionOnboardingQuery, schema.Payload{Message: "## Time Off"})}
	res, err := NewAskTool(pipeline).Handle(context.Background(), makeReq(map[string]any{"username": "admin", "query": "PTO?"}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %s", err, resultText(res))
	}
	if resultText(res) != "## Time Off" || pipeline.user != "admin" || pipeline.query != "PTO?" {
		t.Fatalf("unexpected result %q for %s/%s", resultText(res), pipeline.user, pipeline.query)
	}
}

func TestAskImage(t *testing.T) {
	pipeline := &stubPipeline{result: schema.Success(schema.ActionCreateImage, schema.Payload{
		Message: "donut",
		Images:  []schema.Image{{Type: "image", Format: "base64", Data: "aW1n"}},
	})}
	res, err := NewAskTool(pipeline).Handle(context.Background(), makeReq(map[string]any{"username": "pm", "query": "donut"}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v", err)
	}
	var found bool
	for _, c := range res.Content {
		if img, ok := c.(mcp.ImageContent); ok {
			found = img.Data == "aW1n" && img.MIMEType == "image/png"
		}
	}
	if !found || resultText(res) != "donut" {
		t.Fatalf("expected text and image content, got %+v", res.Content)
	}
}

func TestAskDenied(t *testing.T) {
	pipeline := &stubPipeline{result: schema.Failure("You don't have permission to perform this action", schema.ActionGitHubIssues)}
	res, err := NewAskTool(pipeline).Handle(context.Background(), makeReq(map[string]any{"username": "test1", "query": "file a bug"}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(res), "github_issues") {
		t.Fatalf("expected denial tool error, got %q", resultText(res))
	}
}

func TestNewServerListsAsk(t *testing.T) {
	s := NewServer("v0.0.1", &stubPipeline{})
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"name":"ask"`) {
		t.Fatalf("expected ask tool in listing, got %s", data)
	}
}
