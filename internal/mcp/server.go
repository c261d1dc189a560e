package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
	"github.com/arturoeanton/gitsum/internal/service"
)

// DefaultUserID owns chat sessions opened through MCP when the caller names no user.
const DefaultUserID = "mcp"

// Repositories is the scheduler surface exposed as tools.
type Repositories interface {
	ProcessURL(ctx context.Context, rawURL string) (*service.ProcessResult, error)
	GetStatus(ctx context.Context, owner, name string) (domain.StatusView, error)
	Digest(ctx context.Context, owner, name string) (*domain.Digest, error)
}

// Chat is the chat surface exposed as a tool.
type Chat interface {
	Send(ctx context.Context, userID, repositoryURL, message string) (string, error)
}

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for external AI agents to process and query repositories.
type Server struct {
	repos Repositories
	chat  Chat
	port  string
	srv   *http.Server
}

// NewServer creates a new MCP server.
func NewServer(repos Repositories, chat Chat, port string) *Server {
	return &Server{
		repos: repos,
		chat:  chat,
		port:  port,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeInternal       = -32603
)

// Handler returns the HTTP handler serving /mcp and /mcp/sse.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)
	return mux
}

// Start begins the MCP server on the configured port. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("MCP server starting", "port", s.port)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "gitsum",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found")
		return
	}

	if err != nil {
		code := codeInternal
		if errors.Is(err, port.ErrValidation) {
			code = codeInvalidParams
		}
		writeError(w, req.ID, code, fmt.Sprintf("%s: %v", port.Kind(err), err))
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	repoKey := json.RawMessage(`{
		"type": "object",
		"properties": {
			"owner": {"type": "string", "description": "Repository owner"},
			"name": {"type": "string", "description": "Repository name"}
		},
		"required": ["owner", "name"]
	}`)
	tools := []Tool{
		{
			Name:        "process_repository",
			Description: "Analyze a repository and cache its digest; returns immediately with the job status",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "Repository URL (https or git@host:owner/name)"}
				},
				"required": ["url"]
			}`),
		},
		{
			Name:        "repository_status",
			Description: "Get the processing status of a repository",
			InputSchema: repoKey,
		},
		{
			Name:        "repository_digest",
			Description: "Get the compressed digest of a processed repository",
			InputSchema: repoKey,
		},
		{
			Name:        "ask_repository",
			Description: "Ask a question about a processed repository",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "Repository URL"},
					"question": {"type": "string", "description": "Question to ask"},
					"user_id": {"type": "string", "description": "Chat session owner (default: mcp)"}
				},
				"required": ["url", "question"]
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("%w: invalid params: %v", port.ErrValidation, err)
	}

	switch req.Name {
	case "process_repository":
		var args struct {
			URL string `json:"url"`
		}
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		res, err := s.repos.ProcessURL(ctx, args.URL)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("Repository is %s.", res.Status)
		if res.Cached {
			text = "Repository digest served from cache (completed)."
		}
		return textResult(text, res)

	case "repository_status":
		var args struct {
			Owner string `json:"owner"`
			Name  string `json:"name"`
		}
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		st, err := s.repos.GetStatus(ctx, args.Owner, args.Name)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("%s/%s: %s", args.Owner, args.Name, st.Status)
		if st.ErrorMessage != "" {
			text += " (" + st.ErrorMessage + ")"
		}
		return textResult(text, st)

	case "repository_digest":
		var args struct {
			Owner string `json:"owner"`
			Name  string `json:"name"`
		}
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		d, err := s.repos.Digest(ctx, args.Owner, args.Name)
		if err != nil {
			return nil, err
		}
		return textResult(d.Summary, d)

	case "ask_repository":
		var args struct {
			URL      string `json:"url"`
			Question string `json:"question"`
			UserID   string `json:"user_id"`
		}
		if err := decodeArgs(req.Arguments, &args); err != nil {
			return nil, err
		}
		if strings.TrimSpace(args.UserID) == "" {
			args.UserID = DefaultUserID
		}
		answer, err := s.chat.Send(ctx, args.UserID, args.URL, args.Question)
		if err != nil {
			return nil, err
		}
		return textResult(answer, nil)

	default:
		return nil, fmt.Errorf("%w: unknown tool: %s", port.ErrValidation, req.Name)
	}
}

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing arguments", port.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid arguments: %v", port.ErrValidation, err)
	}
	return nil
}

func textResult(text string, structured interface{}) (interface{}, error) {
	result := map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
	}
	if structured != nil {
		result["structuredContent"] = structured
	}
	return result, nil
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
