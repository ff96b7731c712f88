// Package logger はアプリケーション全体で使うJSON構造化ロガーを構成する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はInfoとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はwへJSONを出力するslog.Loggerを生成する。
// 出力レベルは環境変数LOG_LEVELで指定する（既定はinfo）。
func Setup(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
	})
	return slog.New(handler)
}

// SetupDefault はSetupのロガーをグローバルロガーに設定する。wがnilならos.Stdout。
// 設定の読み込みより前に呼ぶため、.envのLOG_LEVELは反映されない。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w))
}

// ForComponent はcomponent属性を付けたグローバルロガーを返す。
// ワーカーのジョブごとにログを区別するために使う。
func ForComponent(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}
