// Package media はメディアホスト（Cloudinary互換のunsigned upload API）へのアップロードを提供する。
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL  = "https://api.cloudinary.com/v1_1"
	maxResponseSize = 1 << 20
)

// Resource はアップロードするメディアの種別。
type Resource string

// メディア種別
const (
	ResourceImage Resource = "image"
	ResourceAudio Resource = "audio"
)

// endpointType はCloudinaryのエンドポイント上のリソース種別を返す。
// 音声はvideoリソースとして扱われる。
func (r Resource) endpointType() string {
	if r == ResourceAudio {
		return "video"
	}
	return "image"
}

// アップロード結果のラベル
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder はアップロードの結果とレイテンシを記録する。
type Recorder interface {
	RecordUpload(resource, outcome string)
	RecordUploadLatency(resource string, duration time.Duration)
}

// URLValidator は応答に含まれるURLを保存してよいか検証する。
type URLValidator interface {
	ValidateMediaURL(rawURL string) error
}

// Uploader はメディアをアップロードし、公開URLを返すインターフェース。
type Uploader interface {
	Upload(ctx context.Context, resource Resource, filename string, r io.Reader) (string, error)
}

// Config はCloudinaryUploaderの設定。
type Config struct {
	CloudName   string
	ImagePreset string
	AudioPreset string

	// テスト用にオーバーライド可能なURL
	BaseURL string

	HTTPClient *http.Client
	Validator  URLValidator
}

// CloudinaryUploader はunsigned upload presetによるアップロードを行う。
type CloudinaryUploader struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

// NewCloudinaryUploader はCloudinaryUploaderを生成する。
func NewCloudinaryUploader(config Config, logger *slog.Logger) *CloudinaryUploader {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudinaryUploader{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SetRecorder はアップロード結果の記録先を設定する。
func (u *CloudinaryUploader) SetRecorder(r Recorder) {
	u.recorder = r
}

// uploadResponse はアップロードAPIのレスポンスのうち使用するフィールド。
type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload はファイルをmultipartで送信し、secure_urlを返す。
// 返されたURLはhttpsであり、Validatorが設定されていればその検証も通過したもの。
func (u *CloudinaryUploader) Upload(ctx context.Context, resource Resource, filename string, r io.Reader) (string, error) {
	start := time.Now()
	secureURL, err := u.upload(ctx, resource, filename, r)

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		u.logger.Warn("media upload failed",
			slog.String("resource", string(resource)),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
	}
	if u.recorder != nil {
		u.recorder.RecordUpload(string(resource), outcome)
		u.recorder.RecordUploadLatency(string(resource), time.Since(start))
	}
	return secureURL, err
}

func (u *CloudinaryUploader) upload(ctx context.Context, resource Resource, filename string, r io.Reader) (string, error) {
	// ファイル本体はメモリに溜めず、パイプ越しに送信しながら書き込む
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(u.writeForm(mw, resource, filename, r))
	}()

	endpoint := fmt.Sprintf("%s/%s/%s/upload", u.config.BaseURL, u.config.CloudName, resource.endpointType())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.httpClient.Do(req)
	// 書き込み側のgoroutineを確実に終わらせる
	pr.Close()
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var ur uploadResponse
	jsonErr := json.Unmarshal(body, &ur)

	if resp.StatusCode != http.StatusOK {
		if jsonErr == nil && ur.Error != nil && ur.Error.Message != "" {
			return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, ur.Error.Message)
		}
		return "", fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}
	if jsonErr != nil {
		return "", fmt.Errorf("failed to parse response: %w", jsonErr)
	}
	if !strings.HasPrefix(ur.SecureURL, "https://") {
		return "", fmt.Errorf("upload response has no https secure_url: %q", ur.SecureURL)
	}
	if u.config.Validator != nil {
		if err := u.config.Validator.ValidateMediaURL(ur.SecureURL); err != nil {
			return "", fmt.Errorf("unsafe secure_url: %w", err)
		}
	}
	return ur.SecureURL, nil
}

// writeForm はプリセット等のフィールドとファイル本体をmwへ書き込み、閉じる。
func (u *CloudinaryUploader) writeForm(mw *multipart.Writer, resource Resource, filename string, r io.Reader) error {
	if err := mw.WriteField("upload_preset", u.preset(resource)); err != nil {
		return fmt.Errorf("failed to write upload preset: %w", err)
	}
	if resource == ResourceAudio {
		if err := mw.WriteField("resource_type", "video"); err != nil {
			return fmt.Errorf("failed to write resource type: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return nil
}

func (u *CloudinaryUploader) preset(resource Resource) string {
	if resource == ResourceAudio {
		return u.config.AudioPreset
	}
	return u.config.ImagePreset
}

// compile-time interface check
var _ Uploader = (*CloudinaryUploader)(nil)
