// Package jsonstore は汎用REST JSONストア（json-server互換）のクライアントを提供する。
// コレクション単位の一覧・取得・作成・部分更新・削除と、
// albums / songs コレクション向けの型付きヘルパーを含む。
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 10 << 20
	// maxErrorBody はエラー時にStatusErrorへ残すボディの長さ。
	maxErrorBody = 512
)

// 操作の結果ラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// ErrNotFound は取得対象が存在しない場合のエラー。
var ErrNotFound = errors.New("jsonstore: not found")

// StatusError はストアが2xx以外を返した場合のエラー。
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("jsonstore: %s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// Recorder はストア呼び出しの結果を記録する。
type Recorder interface {
	RecordStoreRequest(op, outcome string)
}

// Client はRESTストアのクライアント。
// ストアは認証を持たないため、リクエストに認証ヘッダーは付与しない。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

// NewClient はClientを生成する。baseURLは末尾のスラッシュを除いて保持する。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetRecorder は呼び出し結果の記録先を設定する。
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// List はコレクションの全件を取得してoutにデコードする。
func (c *Client) List(ctx context.Context, collection string, out any) error {
	return c.do(ctx, "list", http.MethodGet, "/"+url.PathEscape(collection), nil, out)
}

// Get はIDを指定して1件取得する。存在しない場合はErrNotFoundを返す。
func (c *Client) Get(ctx context.Context, collection, id string, out any) error {
	err := c.do(ctx, "get", http.MethodGet, itemPath(collection, id), nil, out)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return err
}

// Create はコレクションに1件作成する。outがnilでなければ作成結果をデコードする。
func (c *Client) Create(ctx context.Context, collection string, in, out any) error {
	return c.do(ctx, "create", http.MethodPost, "/"+url.PathEscape(collection), in, out)
}

// Patch は1件を部分更新する。
func (c *Client) Patch(ctx context.Context, collection, id string, in, out any) error {
	return c.do(ctx, "patch", http.MethodPatch, itemPath(collection, id), in, out)
}

// Delete は1件削除する。
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, itemPath(collection, id), nil, nil)
}

func itemPath(collection, id string) string {
	return "/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

// do はリクエストを1回だけ送信する。失敗時のリトライは行わない。
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	err := c.send(ctx, method, path, in, out)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		c.logger.Warn("store request failed",
			slog.String("op", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	if c.recorder != nil {
		c.recorder.RecordStoreRequest(op, outcome)
	}
	return err
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
