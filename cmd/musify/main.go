// Command musify は音楽カタログ管理画面のサーバー、セッション掃除ワーカー、マイグレーションを起動する。
//
//	musify [serve|worker|migrate [up|down]|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/musify/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
