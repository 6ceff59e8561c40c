// Package catalog はアルバムと曲のCRUD操作を提供する。
//
// 変更操作はいずれも、入力検証 → メディアのアップロード → 表現の組み立て →
// RESTストアへの書き込み、の順に行う。検証に失敗した場合はネットワーク呼び出しを行わない。
// 失敗は操作単位の汎用メッセージを持つAPIErrorに変換して返し、原因はログに記録する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/musify/internal/jsonstore"
	"github.com/hitoshi/musify/internal/media"
	"github.com/hitoshi/musify/internal/model"
	"github.com/hitoshi/musify/internal/security"
)

// ユーザーに通知するメッセージ
const (
	MsgAlbumCreated       = "Album created successfully!"
	MsgAlbumDeleted       = "Album deleted successfully!"
	MsgSongAdded          = "Song added successfully!"
	MsgSongDeleted        = "Song deleted successfully!"
	msgCreateAlbumFailed  = "Failed to create album. Please try again!"
	msgDeleteAlbumFailed  = "Failed to delete album!"
	msgAddSongFailed      = "Failed to add song!"
	msgDeleteSongFailed   = "Failed to delete song!"
	msgLoadAlbumFailed    = "Failed to load album!"
	msgLoadDashboardError = "Failed to load albums!"
)

// Store はカタログが利用するRESTストアの操作。jsonstore.Clientが実装する。
type Store interface {
	ListAlbums(ctx context.Context) ([]model.Album, error)
	ListSongs(ctx context.Context) ([]model.Song, error)
	GetAlbum(ctx context.Context, id string) (*model.Album, error)
	CreateAlbum(ctx context.Context, album model.Album) (*model.Album, error)
	PatchAlbumSongs(ctx context.Context, albumID string, songs []model.Song) error
	DeleteAlbum(ctx context.Context, id string) error
	CreateSong(ctx context.Context, song model.Song) error
	DeleteSong(ctx context.Context, id string) error
}

// ActiveUserCounter は現在ログイン中のユーザー数を返す。session.Managerが実装する。
type ActiveUserCounter interface {
	ActiveUsers() int
}

// Upload はフォームから受け取ったファイル。
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// contentType はnil安全にContentTypeを返す。
func (u *Upload) contentType() string {
	if u == nil {
		return ""
	}
	return u.ContentType
}

// CreateAlbumInput はアルバム作成の入力。
type CreateAlbumInput struct {
	Name   string
	Artist string
	Image  *Upload
}

// AddSongInput は曲追加の入力。Thumbnailは省略可能で、省略時はアルバムのカバー画像を使う。
type AddSongInput struct {
	Title     string
	Duration  string
	Audio     *Upload
	Thumbnail *Upload
}

// Dashboard は管理画面のトップに表示する内容。
// 読み込みに失敗した場合は空のまま、Unavailableを真にする。
type Dashboard struct {
	Stats       model.CatalogStats
	Albums      []model.Album
	Unavailable bool
}

// Service はカタログ操作を提供する。
type Service struct {
	store     Store
	uploader  media.Uploader
	sanitizer security.TextSanitizer
	users     ActiveUserCounter
	logger    *slog.Logger
	newID     func() string
}

// NewService はServiceを生成する。
func NewService(store Store, uploader media.Uploader, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		uploader:  uploader,
		sanitizer: sanitizer,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// SetActiveUserCounter はダッシュボードのアクティブユーザー数の取得元を設定する。
func (s *Service) SetActiveUserCounter(c ActiveUserCounter) {
	s.users = c
}

// Dashboard はアルバム一覧と集計値を取得する。
// 取得に失敗しても呼び出し元にはエラーを返さず、ログに記録して空の内容を返す。
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	var d Dashboard
	if s.users != nil {
		d.Stats.ActiveUsers = s.users.ActiveUsers()
	}

	albums, err := s.store.ListAlbums(ctx)
	if err != nil {
		s.logger.Error(msgLoadDashboardError, slog.String("error", err.Error()))
		d.Unavailable = true
		return d
	}
	songs, err := s.store.ListSongs(ctx)
	if err != nil {
		s.logger.Error(msgLoadDashboardError, slog.String("error", err.Error()))
		d.Unavailable = true
		return d
	}

	d.Albums = albums
	d.Stats.TotalAlbums = len(albums)
	d.Stats.TotalSongs = len(songs)
	return d
}

// GetAlbum はアルバムを取得する。
// 存在しない場合はALBUM_NOT_FOUND、その他の失敗はネットワークエラーを返す。
func (s *Service) GetAlbum(ctx context.Context, id string) (*model.Album, error) {
	album, err := s.store.GetAlbum(ctx, id)
	if err != nil {
		if errors.Is(err, jsonstore.ErrNotFound) {
			return nil, model.NewAlbumNotFoundError(id)
		}
		return nil, s.networkError(msgLoadAlbumFailed, err)
	}
	return album, nil
}

// CreateAlbum はカバー画像をアップロードし、曲を持たないアルバムを作成する。
func (s *Service) CreateAlbum(ctx context.Context, in CreateAlbumInput) (*model.Album, error) {
	name := s.sanitizer.SanitizeText(in.Name)
	artist := s.sanitizer.SanitizeText(in.Artist)

	if err := validateForm(albumForm{
		Name:      name,
		Artist:    artist,
		ImageType: in.Image.contentType(),
	}); err != nil {
		return nil, err
	}

	imageURL, err := s.uploader.Upload(ctx, media.ResourceImage, in.Image.Filename, in.Image.Body)
	if err != nil {
		return nil, s.networkError(msgCreateAlbumFailed, err)
	}

	created, err := s.store.CreateAlbum(ctx, model.Album{
		Name:   name,
		Artist: artist,
		Image:  imageURL,
		Songs:  []model.Song{},
	})
	if err != nil {
		return nil, s.networkError(msgCreateAlbumFailed, err)
	}

	s.logger.Info("album created",
		slog.String("album_id", created.ID.String()),
		slog.String("name", name),
	)
	return created, nil
}

// AddSong は音声と任意のサムネイルをアップロードし、曲をアルバムに追加する。
// アルバムの曲リストを更新した後、songsコレクションにも同じ曲を作成する。
func (s *Service) AddSong(ctx context.Context, albumID string, in AddSongInput) (*model.Song, error) {
	title := s.sanitizer.SanitizeText(in.Title)
	duration := s.sanitizer.SanitizeText(in.Duration)

	if err := validateForm(songForm{
		Title:         title,
		Duration:      duration,
		AudioType:     in.Audio.contentType(),
		ThumbnailType: in.Thumbnail.contentType(),
	}); err != nil {
		return nil, err
	}

	album, err := s.store.GetAlbum(ctx, albumID)
	if err != nil {
		if errors.Is(err, jsonstore.ErrNotFound) {
			return nil, model.NewAlbumNotFoundError(albumID)
		}
		return nil, s.networkError(msgAddSongFailed, err)
	}

	audioURL, err := s.uploader.Upload(ctx, media.ResourceAudio, in.Audio.Filename, in.Audio.Body)
	if err != nil {
		return nil, s.networkError(msgAddSongFailed, err)
	}

	thumbnailURL := album.Image
	if in.Thumbnail != nil {
		thumbnailURL, err = s.uploader.Upload(ctx, media.ResourceImage, in.Thumbnail.Filename, in.Thumbnail.Body)
		if err != nil {
			return nil, s.networkError(msgAddSongFailed, err)
		}
	}

	song := model.Song{
		ID:        model.EntityID(s.newID()),
		Title:     title,
		Duration:  duration,
		AudioURL:  audioURL,
		Thumbnail: thumbnailURL,
		AlbumID:   model.EntityID(albumID),
		Artist:    album.Artist,
		AlbumName: album.Name,
	}

	songs := make([]model.Song, 0, len(album.Songs)+1)
	songs = append(songs, album.Songs...)
	songs = append(songs, song)

	if err := s.store.PatchAlbumSongs(ctx, albumID, songs); err != nil {
		return nil, s.networkError(msgAddSongFailed, err)
	}
	if err := s.store.CreateSong(ctx, song); err != nil {
		return nil, s.networkError(msgAddSongFailed, err)
	}

	s.logger.Info("song added",
		slog.String("album_id", albumID),
		slog.String("song_id", song.ID.String()),
	)
	return &song, nil
}

// DeleteAlbum はアルバムを削除する。
func (s *Service) DeleteAlbum(ctx context.Context, id string) error {
	if err := s.store.DeleteAlbum(ctx, id); err != nil {
		return s.networkError(msgDeleteAlbumFailed, err)
	}
	s.logger.Info("album deleted", slog.String("album_id", id))
	return nil
}

// DeleteSong はアルバムの曲リストから曲を外し、songsコレクションからも削除する。
func (s *Service) DeleteSong(ctx context.Context, albumID, songID string) error {
	album, err := s.store.GetAlbum(ctx, albumID)
	if err != nil {
		if errors.Is(err, jsonstore.ErrNotFound) {
			return model.NewAlbumNotFoundError(albumID)
		}
		return s.networkError(msgDeleteSongFailed, err)
	}

	remaining := make([]model.Song, 0, len(album.Songs))
	for _, song := range album.Songs {
		if song.ID.String() != songID {
			remaining = append(remaining, song)
		}
	}

	if err := s.store.PatchAlbumSongs(ctx, albumID, remaining); err != nil {
		return s.networkError(msgDeleteSongFailed, err)
	}
	if err := s.store.DeleteSong(ctx, songID); err != nil {
		return s.networkError(msgDeleteSongFailed, err)
	}

	s.logger.Info("song deleted",
		slog.String("album_id", albumID),
		slog.String("song_id", songID),
	)
	return nil
}

// networkError は原因をログに記録し、操作単位の汎用メッセージを持つエラーを返す。
func (s *Service) networkError(message string, cause error) error {
	s.logger.Error(message, slog.String("error", cause.Error()))
	return fmt.Errorf("%w: %v", model.NewNetworkError(message), cause)
}
