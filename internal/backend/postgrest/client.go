package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/msa-portal/portal-backend/internal/backend"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/enums"
	"github.com/msa-portal/portal-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Client implements backend.Backend against a hosted PostgREST/GoTrue pair
// (the Supabase REST surface).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logg       *logger.Logger
}

var _ backend.Backend = (*Client)(nil)

// Params configure the REST backend.
type Params struct {
	Config     config.BackendConfig
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// New builds a PostgREST backend.
func New(params Params) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(params.Config.URL), "/")
	if base == "" {
		return nil, errors.New("backend url required")
	}
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	if strings.TrimSpace(params.Config.AnonKey) == "" {
		return nil, errors.New("backend api key required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		timeout := params.Config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		apiKey:     params.Config.AnonKey,
		httpClient: httpClient,
		logg:       params.Logger,
	}, nil
}

func (c *Client) Query(ctx context.Context, collection string, spec backend.QuerySpec) ([]backend.Row, int, error) {
	op := "query " + collection
	values := url.Values{}
	values.Set("select", "*")
	for _, f := range spec.Filters {
		expr, err := filterExpression(f)
		if err != nil {
			return nil, 0, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: err}
		}
		values.Add(f.Field, expr)
	}
	if len(spec.Order) > 0 {
		parts := make([]string, 0, len(spec.Order))
		for _, o := range spec.Order {
			direction := "asc"
			if o.Desc {
				direction = "desc"
			}
			parts = append(parts, o.Field+"."+direction)
		}
		values.Set("order", strings.Join(parts, ","))
	}
	if spec.Limit > 0 {
		values.Set("limit", strconv.Itoa(spec.Limit))
	}
	if spec.Offset > 0 {
		values.Set("offset", strconv.Itoa(spec.Offset))
	}

	body, header, err := c.do(ctx, op, http.MethodGet, "/rest/v1/"+collection+"?"+values.Encode(), nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return nil, 0, err
	}

	var rows []backend.Row
	if err := decodeJSON(body, &rows); err != nil {
		return nil, 0, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: err}
	}
	total, ok := parseContentRange(header.Get("Content-Range"))
	if !ok {
		total = len(rows)
	}
	return rows, total, nil
}

func (c *Client) Call(ctx context.Context, procedure string, args map[string]any) (backend.Payload, error) {
	op := "call " + procedure
	if args == nil {
		args = map[string]any{}
	}
	body, _, err := c.do(ctx, op, http.MethodPost, "/rest/v1/rpc/"+procedure, args, nil)
	if err != nil {
		return nil, err
	}
	return backend.Payload(body), nil
}

func (c *Client) Insert(ctx context.Context, collection string, row backend.Row) (backend.Row, error) {
	op := "insert " + collection
	body, _, err := c.do(ctx, op, http.MethodPost, "/rest/v1/"+collection, row, map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return nil, err
	}
	return singleRow(op, body)
}

func (c *Client) Update(ctx context.Context, collection, id string, patch backend.Row) (backend.Row, error) {
	op := "update " + collection
	if strings.TrimSpace(id) == "" {
		return nil, backend.Errorf(backend.KindMalformed, op, "id is required")
	}
	body, _, err := c.do(ctx, op, http.MethodPatch, "/rest/v1/"+collection+"?id=eq."+url.QueryEscape(id), patch, map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return nil, err
	}
	return singleRow(op, body)
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	op := "delete " + collection
	if strings.TrimSpace(id) == "" {
		return backend.Errorf(backend.KindMalformed, op, "id is required")
	}
	body, _, err := c.do(ctx, op, http.MethodDelete, "/rest/v1/"+collection+"?id=eq."+url.QueryEscape(id), nil, map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return err
	}
	var rows []backend.Row
	if err := decodeJSON(body, &rows); err == nil && len(rows) == 0 {
		return backend.Errorf(backend.KindNotFound, op, "%s %s not found", collection, id)
	}
	return nil
}

type authUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// CurrentUser resolves the caller's bearer token through the auth endpoint.
// Anonymous callers yield a nil user.
func (c *Client) CurrentUser(ctx context.Context) (*backend.User, error) {
	if user := backend.UserFromContext(ctx); user != nil {
		return user, nil
	}
	if backend.AccessTokenFromContext(ctx) == "" {
		return nil, nil
	}
	body, _, err := c.do(ctx, "current user", http.MethodGet, "/auth/v1/user", nil, nil)
	if err != nil {
		if backend.IsKind(err, backend.KindUnauthenticated) {
			return nil, nil
		}
		return nil, err
	}
	var au authUser
	if err := decodeJSON(body, &au); err != nil {
		return nil, &backend.Error{Kind: backend.KindMalformed, Op: "current user", Err: err}
	}
	return &backend.User{
		ID:    au.ID,
		Email: strings.ToLower(au.Email),
		Role:  roleFromMetadata(au.AppMetadata, au.UserMetadata),
	}, nil
}

func roleFromMetadata(sources ...map[string]any) enums.MemberRole {
	for _, meta := range sources {
		raw, ok := meta["role"].(string)
		if !ok {
			continue
		}
		if role, err := enums.ParseMemberRole(strings.ToLower(strings.TrimSpace(raw))); err == nil {
			return role
		}
	}
	return enums.MemberRoleMember
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload any, headers map[string]string) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, nil, &backend.Error{Kind: backend.KindTransport, Op: op, Err: fmt.Errorf("create request: %w", err)}
	}

	bearer := c.apiKey
	if token := backend.AccessTokenFromContext(ctx); token != "" {
		bearer = token
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := backend.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &backend.Error{Kind: backend.KindTransport, Op: op, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &backend.Error{Kind: backend.KindTransport, Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, classifyResponse(op, resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func classifyResponse(op string, status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	cause := fmt.Errorf("status %d: %s", status, msg)

	kind := backend.KindTransport
	switch {
	case apiErr.Code == "23505" || status == http.StatusConflict:
		kind = backend.KindDuplicate
	case apiErr.Code == "42P01" || apiErr.Code == "PGRST205":
		kind = backend.KindCollectionMissing
	case apiErr.Code == "42883" || apiErr.Code == "PGRST202":
		kind = backend.KindProcedureMissing
	case apiErr.Code == "42501" || status == http.StatusForbidden:
		kind = backend.KindPermission
	case status == http.StatusUnauthorized:
		kind = backend.KindUnauthenticated
	case status == http.StatusNotFound:
		kind = backend.KindNotFound
	}
	return &backend.Error{Kind: kind, Op: op, Err: cause}
}

func filterExpression(f backend.Filter) (string, error) {
	switch f.Op {
	case backend.OpEq, "":
		return "eq." + fmt.Sprint(f.Value), nil
	case backend.OpNeq:
		return "neq." + fmt.Sprint(f.Value), nil
	case backend.OpILike:
		return "ilike.*" + fmt.Sprint(f.Value) + "*", nil
	case backend.OpGte:
		return "gte." + formatValue(f.Value), nil
	case backend.OpLte:
		return "lte." + formatValue(f.Value), nil
	case backend.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			return "", fmt.Errorf("in filter on %s needs a list", f.Field)
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, fmt.Sprint(v))
		}
		return "in.(" + strings.Join(parts, ",") + ")", nil
	default:
		return "", fmt.Errorf("unsupported filter op %q", f.Op)
	}
}

func formatValue(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// parseContentRange reads the total out of "0-24/57" or "*/0".
func parseContentRange(value string) (int, bool) {
	idx := strings.LastIndex(value, "/")
	if idx < 0 || idx == len(value)-1 {
		return 0, false
	}
	total, err := strconv.Atoi(value[idx+1:])
	if err != nil {
		return 0, false
	}
	return total, true
}

func singleRow(op string, body []byte) (backend.Row, error) {
	var rows []backend.Row
	if err := decodeJSON(body, &rows); err != nil {
		return nil, &backend.Error{Kind: backend.KindMalformed, Op: op, Err: err}
	}
	if len(rows) == 0 {
		return nil, backend.Errorf(backend.KindNotFound, op, "no row returned")
	}
	return rows[0], nil
}

func decodeJSON(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(out)
}
