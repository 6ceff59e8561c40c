package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntityID はRESTストアが発行するID。
// ストア実装によって文字列または数値で返るため、どちらも文字列として受け付ける。
type EntityID string

// UnmarshalJSON は文字列・数値どちらのJSON表現も受け付ける。
func (id *EntityID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = EntityID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid entity id %s: %w", string(b), err)
	}
	*id = EntityID(n.String())
	return nil
}

// String はIDを文字列で返す。
func (id EntityID) String() string {
	return string(id)
}

// Album はアルバムを表す。RESTストアのalbumsコレクションの1件に対応する。
// Songsはアルバムに埋め込まれた曲の順序付きリスト。
type Album struct {
	ID     EntityID `json:"id,omitempty"`
	Name   string   `json:"name"`
	Artist string   `json:"artist"`
	Image  string   `json:"image"`
	Songs  []Song   `json:"songs"`
}

// SongCount は埋め込まれた曲数を返す。
func (a *Album) SongCount() int {
	if a == nil {
		return 0
	}
	return len(a.Songs)
}

// Song は曲を表す。songsコレクションとアルバムのsongs配列の両方に保存される。
type Song struct {
	ID        EntityID `json:"id"`
	Title     string   `json:"title"`
	Duration  string   `json:"duration"`
	AudioURL  string   `json:"audioUrl"`
	Thumbnail string   `json:"thumbnail"`
	AlbumID   EntityID `json:"albumId"`
	Artist    string   `json:"artist"`
	AlbumName string   `json:"albumName"`
}

// CatalogStats はダッシュボードに表示する集計値。
type CatalogStats struct {
	TotalAlbums int
	TotalSongs  int
	ActiveUsers int
}
