package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は管理画面サーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを掃除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// migrateのサブ引数
const (
	migrateUp   = "up"
	migrateDown = "down"
)

// migrateDirection は "migrate down" のときだけ"down"を返す。
// それ以外は未適用分をすべて適用する"up"として扱う。
func migrateDirection(args []string) string {
	if len(args) > 1 && args[1] == migrateDown {
		return migrateDown
	}
	return migrateUp
}
