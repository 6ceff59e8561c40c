package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/musify/internal/catalog"
	"github.com/hitoshi/musify/internal/middleware"
	"github.com/hitoshi/musify/internal/model"
	"github.com/hitoshi/musify/internal/view"
)

// multipartMemory はアップロードフォームの解析時にメモリに保持する上限。超過分は一時ファイルに置かれる。
const multipartMemory = 32 << 20

const (
	adminPath        = "/admin"
	msgUploadInvalid = middleware.FormUnreadableMessage
)

// CatalogService は管理画面ハンドラーが必要とするカタログ操作。catalog.Serviceが実装する。
type CatalogService interface {
	Dashboard(ctx context.Context) catalog.Dashboard
	GetAlbum(ctx context.Context, id string) (*model.Album, error)
	CreateAlbum(ctx context.Context, in catalog.CreateAlbumInput) (*model.Album, error)
	AddSong(ctx context.Context, albumID string, in catalog.AddSongInput) (*model.Song, error)
	DeleteAlbum(ctx context.Context, id string) error
	DeleteSong(ctx context.Context, albumID, songID string) error
}

// AdminHandler は管理画面のHTTPハンドラー。ルートガードの内側に配置する。
type AdminHandler struct {
	catalog      CatalogService
	renderer     PageRenderer
	cookieSecure bool
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(svc CatalogService, renderer PageRenderer, cookieSecure bool) *AdminHandler {
	return &AdminHandler{
		catalog:      svc,
		renderer:     renderer,
		cookieSecure: cookieSecure,
	}
}

// createAlbumPageData はアルバム作成画面に再表示する入力値。
type createAlbumPageData struct {
	Name   string
	Artist string
}

// songFormData は曲追加フォームに再表示する入力値。
type songFormData struct {
	Title    string
	Duration string
}

// albumPageData はアルバム詳細画面のデータ。Albumがnilの場合は未検出として表示する。
type albumPageData struct {
	Album *model.Album
	Form  songFormData
}

// confirmPageData は削除確認画面のデータ。
type confirmPageData struct {
	Heading   string
	Question  string
	Action    string
	CancelURL string
}

// Dashboard は集計値とアルバム一覧を表示する。
// GET /admin
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d := h.catalog.Dashboard(r.Context())
	h.renderer.Render(w, http.StatusOK, view.PageAdmin, newPage(w, r, "Dashboard", d))
}

// CreateAlbumForm はアルバム作成画面を表示する。
// GET /admin/create-album
func (h *AdminHandler) CreateAlbumForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageCreateAlbum, newPage(w, r, "Create Album", createAlbumPageData{}))
}

// CreateAlbum はカバー画像をアップロードしてアルバムを作成する。
// 成功時はダッシュボードへリダイレクトし、失敗時は入力値を保ったまま再表示する。
// POST /admin/create-album
func (h *AdminHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	data := createAlbumPageData{}
	if err := parseUploadForm(r); err != nil {
		renderFormError(h.renderer, w, r, http.StatusBadRequest, view.PageCreateAlbum, "Create Album", data, msgUploadInvalid)
		return
	}
	data.Name = r.PostFormValue("name")
	data.Artist = r.PostFormValue("artist")

	image, closeImage := formUpload(r, "image")
	defer closeImage()

	_, err := h.catalog.CreateAlbum(r.Context(), catalog.CreateAlbumInput{
		Name:   data.Name,
		Artist: data.Artist,
		Image:  image,
	})
	if err != nil {
		apiErr := toAPIError(err)
		renderFormError(h.renderer, w, r, middleware.StatusForError(apiErr), view.PageCreateAlbum, "Create Album", data, apiErr.Message)
		return
	}

	view.SetFlash(w, view.FlashSuccess, catalog.MsgAlbumCreated, h.cookieSecure)
	http.Redirect(w, r, adminPath, http.StatusSeeOther)
}

// Album はアルバムの詳細と曲一覧、曲追加フォームを表示する。
// GET /admin/album/{id}
func (h *AdminHandler) Album(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	album, err := h.catalog.GetAlbum(r.Context(), id)
	if err != nil {
		apiErr := toAPIError(err)
		page := newPage(w, r, "Album", albumPageData{})
		if apiErr.Code != model.ErrCodeAlbumNotFound {
			page.Flash = &view.Flash{Kind: view.FlashError, Message: apiErr.Message}
		}
		h.renderer.Render(w, middleware.StatusForError(apiErr), view.PageAlbum, page)
		return
	}
	h.renderer.Render(w, http.StatusOK, view.PageAlbum, newPage(w, r, album.Name, albumPageData{Album: album}))
}

// AddSong は音声と任意のサムネイルをアップロードし、アルバムに曲を追加する。
// 入力検証に失敗した場合は入力値を保ったまま再表示し、それ以外は詳細画面へリダイレクトする。
// POST /admin/album/{id}/songs
func (h *AdminHandler) AddSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := parseUploadForm(r); err != nil {
		h.flashRedirect(w, r, view.FlashError, msgUploadInvalid, albumPath(id))
		return
	}
	form := songFormData{
		Title:    r.PostFormValue("title"),
		Duration: r.PostFormValue("duration"),
	}

	audio, closeAudio := formUpload(r, "audio")
	defer closeAudio()
	thumbnail, closeThumbnail := formUpload(r, "thumbnail")
	defer closeThumbnail()

	_, err := h.catalog.AddSong(r.Context(), id, catalog.AddSongInput{
		Title:     form.Title,
		Duration:  form.Duration,
		Audio:     audio,
		Thumbnail: thumbnail,
	})
	if err == nil {
		h.flashRedirect(w, r, view.FlashSuccess, catalog.MsgSongAdded, albumPath(id))
		return
	}

	apiErr := toAPIError(err)
	switch apiErr.Code {
	case model.ErrCodeValidation:
		album, gerr := h.catalog.GetAlbum(r.Context(), id)
		if gerr != nil {
			h.flashRedirect(w, r, view.FlashError, apiErr.Message, albumPath(id))
			return
		}
		renderFormError(h.renderer, w, r, http.StatusBadRequest, view.PageAlbum, album.Name,
			albumPageData{Album: album, Form: form}, apiErr.Message)
	case model.ErrCodeAlbumNotFound:
		h.renderer.Render(w, http.StatusNotFound, view.PageAlbum, newPage(w, r, "Album", albumPageData{}))
	default:
		h.flashRedirect(w, r, view.FlashError, apiErr.Message, albumPath(id))
	}
}

// ConfirmDeleteAlbum はアルバム削除の確認画面を表示する。
// GET /admin/album/{id}/delete
func (h *AdminHandler) ConfirmDeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.renderer.Render(w, http.StatusOK, view.PageConfirmDelete, newPage(w, r, "Delete Album", confirmPageData{
		Heading:   "Delete Album",
		Question:  "Are you sure you want to delete this album?",
		Action:    albumPath(id) + "/delete",
		CancelURL: adminPath,
	}))
}

// DeleteAlbum は確認済みのアルバム削除を実行し、ダッシュボードへリダイレクトする。
// POST /admin/album/{id}/delete
func (h *AdminHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.catalog.DeleteAlbum(r.Context(), id); err != nil {
		h.flashRedirect(w, r, view.FlashError, toAPIError(err).Message, adminPath)
		return
	}
	h.flashRedirect(w, r, view.FlashSuccess, catalog.MsgAlbumDeleted, adminPath)
}

// ConfirmDeleteSong は曲削除の確認画面を表示する。
// GET /admin/album/{id}/songs/{songId}/delete
func (h *AdminHandler) ConfirmDeleteSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	songID := chi.URLParam(r, "songId")
	h.renderer.Render(w, http.StatusOK, view.PageConfirmDelete, newPage(w, r, "Delete Song", confirmPageData{
		Heading:   "Delete Song",
		Question:  "Are you sure you want to delete this song?",
		Action:    albumPath(id) + "/songs/" + url.PathEscape(songID) + "/delete",
		CancelURL: albumPath(id),
	}))
}

// DeleteSong は確認済みの曲削除を実行し、アルバム詳細へリダイレクトする。
// POST /admin/album/{id}/songs/{songId}/delete
func (h *AdminHandler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	songID := chi.URLParam(r, "songId")
	if err := h.catalog.DeleteSong(r.Context(), id, songID); err != nil {
		h.flashRedirect(w, r, view.FlashError, toAPIError(err).Message, albumPath(id))
		return
	}
	h.flashRedirect(w, r, view.FlashSuccess, catalog.MsgSongDeleted, albumPath(id))
}

func (h *AdminHandler) flashRedirect(w http.ResponseWriter, r *http.Request, kind, msg, to string) {
	view.SetFlash(w, kind, msg, h.cookieSecure)
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func albumPath(id string) string {
	return adminPath + "/album/" + url.PathEscape(id)
}

// parseUploadForm はmultipartフォームを解析する。CSRFミドルウェアで解析済みの場合は何もしない。
func parseUploadForm(r *http.Request) error {
	if r.MultipartForm != nil {
		return nil
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

// formUpload はフォームのファイルを取り出す。未選択の場合はnilを返す。
// 戻り値の関数でファイルを閉じる。
func formUpload(r *http.Request, field string) (*catalog.Upload, func()) {
	f, fh, err := r.FormFile(field)
	if err != nil {
		return nil, func() {}
	}
	return &catalog.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	}, closeQuietly(f)
}

func closeQuietly(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close upload", slog.String("error", err.Error()))
		}
	}
}

// toAPIError はエラーチェーンから*model.APIErrorを取り出す。含まれない場合は内部エラーとして扱う。
func toAPIError(err error) *model.APIError {
	if apiErr, ok := model.AsAPIError(err); ok {
		return apiErr
	}
	slog.Error("unexpected catalog error", slog.String("error", err.Error()))
	return model.NewInternalError()
}
