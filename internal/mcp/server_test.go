package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/helixml/memeindex/domain/post"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/mark3labs/mcp-go/mcp"
)

// fakePosts implements Posts with canned results.
type fakePosts struct {
	posts    []post.Post
	err      error
	gotSkip  int
	gotLimit int
}

func (f *fakePosts) List(_ context.Context, skip, limit int) ([]post.Post, error) {
	f.gotSkip, f.gotLimit = skip, limit
	return f.posts, f.err
}

func (f *fakePosts) Search(_ context.Context, query string) ([]post.Ranked, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domainservice.ErrEmptyQuery
	}
	if f.err != nil {
		return nil, f.err
	}
	ranked := make([]post.Ranked, len(f.posts))
	for i, p := range f.posts {
		ranked[i] = post.NewRanked(p, 0.1*float64(i))
	}
	return ranked, nil
}

func testPost() post.Post {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return post.ReconstructPost(42, "key", "Doge to the moon", "https://i.redd.it/doge.png",
		"https://old.reddit.com/p/42", 120, 40, 320, []float64{1, 0}, "test-model", created)
}

func testServer(posts *fakePosts) *Server {
	return NewServer(posts, "0.1.0-test", nil)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	result := srv.MCPServer().HandleMessage(context.Background(), raw)

	resp, ok := result.(mcp.JSONRPCResponse)
	if !ok {
		t.Fatalf("expected JSONRPCResponse, got %T: %+v", result, result)
	}
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		t.Fatalf("unmarshal result into %T: %v", dst, err)
	}
}

func textFromContent(t *testing.T, result mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	b, err := json.Marshal(result.Content[0])
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	var tc struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(b, &tc); err != nil {
		t.Fatalf("unmarshal text content: %v", err)
	}
	return tc.Text
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) mcp.CallToolResult {
	t.Helper()
	sendMessage(t, srv, "initialize", 1, initializeParams())
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result mcp.CallToolResult
	resultJSON(t, resp, &result)
	return result
}

func TestServer_Initialize(t *testing.T) {
	srv := testServer(&fakePosts{})
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	if result.ServerInfo.Name != "memeindex" {
		t.Errorf("expected server name memeindex, got %s", result.ServerInfo.Name)
	}
	if result.ServerInfo.Version != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", result.ServerInfo.Version)
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability to be present")
	}
}

func TestServer_ListTools(t *testing.T) {
	srv := testServer(&fakePosts{})
	sendMessage(t, srv, "initialize", 1, initializeParams())

	resp := sendMessage(t, srv, "tools/list", 2, nil)

	var result mcp.ListToolsResult
	resultJSON(t, resp, &result)

	names := map[string]mcp.Tool{}
	for _, tool := range result.Tools {
		names[tool.Name] = tool
	}
	for _, name := range []string{"list_memes", "search_memes", "get_version"} {
		if _, ok := names[name]; !ok {
			t.Errorf("missing tool: %s", name)
		}
	}

	search := names["search_memes"]
	if len(search.InputSchema.Required) != 1 || search.InputSchema.Required[0] != "query" {
		t.Errorf("search_memes should require query, got %v", search.InputSchema.Required)
	}
}

func TestServer_ListMemes(t *testing.T) {
	posts := &fakePosts{posts: []post.Post{testPost()}}
	result := callTool(t, testServer(posts), "list_memes", map[string]any{"skip": 5, "limit": 10})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}
	if posts.gotSkip != 5 || posts.gotLimit != 10 {
		t.Errorf("expected skip 5 limit 10, got skip %d limit %d", posts.gotSkip, posts.gotLimit)
	}

	var items []memeResult
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &items); err != nil {
		t.Fatalf("unmarshal list results: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 result, got %d", len(items))
	}
	if items[0].ID != 42 || items[0].HypeScore != 320 {
		t.Errorf("unexpected item: %+v", items[0])
	}
	if items[0].Distance != nil {
		t.Error("listing should not carry a distance")
	}
}

func TestServer_ListMemesDefaults(t *testing.T) {
	posts := &fakePosts{}
	result := callTool(t, testServer(posts), "list_memes", map[string]any{})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}
	if posts.gotSkip != 0 || posts.gotLimit != post.MaxPageSize {
		t.Errorf("expected defaults, got skip %d limit %d", posts.gotSkip, posts.gotLimit)
	}
	if text := textFromContent(t, result); text != "[]" {
		t.Errorf("expected empty array, got %s", text)
	}
}

func TestServer_SearchMemes(t *testing.T) {
	posts := &fakePosts{posts: []post.Post{testPost()}}
	result := callTool(t, testServer(posts), "search_memes", map[string]any{"query": "doge"})

	if result.IsError {
		t.Fatalf("expected success, got error: %s", textFromContent(t, result))
	}

	var items []memeResult
	if err := json.Unmarshal([]byte(textFromContent(t, result)), &items); err != nil {
		t.Fatalf("unmarshal search results: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 result, got %d", len(items))
	}
	if items[0].Distance == nil || *items[0].Distance != 0 {
		t.Errorf("expected distance 0, got %v", items[0].Distance)
	}
}

func TestServer_SearchMemesRequiresQuery(t *testing.T) {
	for name, args := range map[string]map[string]any{
		"missing": {},
		"blank":   {"query": "   "},
	} {
		t.Run(name, func(t *testing.T) {
			result := callTool(t, testServer(&fakePosts{}), "search_memes", args)
			if !result.IsError {
				t.Fatal("expected error response")
			}
			if text := textFromContent(t, result); !strings.Contains(text, "query is required") {
				t.Errorf("expected 'query is required', got: %s", text)
			}
		})
	}
}

func TestServer_SearchMemesFailure(t *testing.T) {
	result := callTool(t, testServer(&fakePosts{err: errors.New("embedder unavailable")}), "search_memes", map[string]any{"query": "doge"})
	if !result.IsError {
		t.Fatal("expected error response")
	}
}

func TestServer_GetVersion(t *testing.T) {
	result := callTool(t, testServer(&fakePosts{}), "get_version", map[string]any{})
	if result.IsError {
		t.Fatal("expected success, got error")
	}
	if text := textFromContent(t, result); text != "0.1.0-test" {
		t.Errorf("expected version 0.1.0-test, got %s", text)
	}
}

var _ Posts = (*fakePosts)(nil)
