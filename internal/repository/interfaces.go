// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/musify/internal/model"
)

// SessionRepository はIdPセッションレコードの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションレコードを作成する。
	Create(ctx context.Context, record *model.SessionRecord) error
	// FindByID は指定IDのレコードを取得する。見つからない場合や期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SessionRecord, error)
	// UpdateRefreshToken はトークン更新後のリフレッシュトークンを保存する。
	UpdateRefreshToken(ctx context.Context, id, refreshToken string) error
	// DeleteByID は指定IDのレコードを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのレコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
