package jsonstore

import (
	"context"

	"github.com/hitoshi/musify/internal/model"
)

// コレクション名
const (
	CollectionAlbums = "albums"
	CollectionSongs  = "songs"
)

// ListAlbums はアルバムを全件取得する。
func (c *Client) ListAlbums(ctx context.Context) ([]model.Album, error) {
	var albums []model.Album
	if err := c.List(ctx, CollectionAlbums, &albums); err != nil {
		return nil, err
	}
	return albums, nil
}

// GetAlbum はアルバムを1件取得する。存在しない場合はErrNotFoundを返す。
func (c *Client) GetAlbum(ctx context.Context, id string) (*model.Album, error) {
	var album model.Album
	if err := c.Get(ctx, CollectionAlbums, id, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// CreateAlbum はアルバムを作成する。IDはストアが採番する。
// songsが未設定の場合は空配列として送信する。
func (c *Client) CreateAlbum(ctx context.Context, album model.Album) (*model.Album, error) {
	album.ID = ""
	if album.Songs == nil {
		album.Songs = []model.Song{}
	}
	var created model.Album
	if err := c.Create(ctx, CollectionAlbums, album, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// albumSongsPatch はアルバムの曲リストだけを置き換える部分更新ボディ。
type albumSongsPatch struct {
	Songs []model.Song `json:"songs"`
}

// PatchAlbumSongs はアルバムに埋め込まれた曲リストを置き換える。
func (c *Client) PatchAlbumSongs(ctx context.Context, albumID string, songs []model.Song) error {
	if songs == nil {
		songs = []model.Song{}
	}
	return c.Patch(ctx, CollectionAlbums, albumID, albumSongsPatch{Songs: songs}, nil)
}

// DeleteAlbum はアルバムを削除する。songsコレクション側の曲は削除しない。
func (c *Client) DeleteAlbum(ctx context.Context, id string) error {
	return c.Delete(ctx, CollectionAlbums, id)
}

// ListSongs は曲を全件取得する。
func (c *Client) ListSongs(ctx context.Context) ([]model.Song, error) {
	var songs []model.Song
	if err := c.List(ctx, CollectionSongs, &songs); err != nil {
		return nil, err
	}
	return songs, nil
}

// CreateSong はsongsコレクションに曲を作成する。
func (c *Client) CreateSong(ctx context.Context, song model.Song) error {
	return c.Create(ctx, CollectionSongs, song, nil)
}

// DeleteSong はsongsコレクションから曲を削除する。
func (c *Client) DeleteSong(ctx context.Context, id string) error {
	return c.Delete(ctx, CollectionSongs, id)
}
