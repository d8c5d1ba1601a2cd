package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Command level messages (info)
		"Opened %s":                                   "%s を開きました",
		"Loaded movie: %.3fs, %d tracks":              "動画を読み込みました: %.3f秒, %d トラック",
		"Track %d: %s %s, %d samples, %.3fs":          "トラック %d: %s %s, %d サンプル, %.3f秒",
		"Decoded %d video frames and %d audio frames": "映像 %d フレーム, 音声 %d フレームをデコードしました",
		"Frames written to %s":                        "フレームを %s に書き出しました",
		"Summary saved to %s":                         "サマリーを %s に保存しました",
		"Contact sheet saved to %s":                   "コンタクトシートを %s に保存しました",
		"Played %.3fs of %.3fs":                       "%.3f秒 / %.3f秒 を再生しました",
		"Interrupted, shutting down...":               "中断されました。シャットダウン中...",

		// Native library and decoder backends
		"Loaded %s":                             "%s を読み込みました",
		"Failed to load %s: %v":                 "%s の読み込みに失敗しました: %v",
		"Decoder backend: %s":                   "デコーダバックエンド: %s",
		"Platform decoder unavailable: %v":      "プラットフォームデコーダを利用できません: %v",
		"Native decoder unavailable: %v":        "ネイティブデコーダを利用できません: %v",
		"Picture size %dx%d":                    "画像サイズ %dx%d",
		"Sent SPS (%d) and PPS (%d) to decoder": "SPS (%d) と PPS (%d) をデコーダに送信しました",

		// Session component
		"Session %s ready": "セッション %s の準備ができました",
		"Session %s closed: %d in, %d out, %d dropped, %d errors": "セッション %s を終了しました: 入力 %d, 出力 %d, 破棄 %d, エラー %d",

		// Audio
		"AAC configured: %d Hz, %d channels":          "AAC を設定しました: %d Hz, %d チャンネル",
		"AAC decoder unavailable, audio disabled: %v": "AAC デコーダを利用できません。音声を無効にします: %v",
		"Audio output opened: %d Hz, %d channels":     "音声出力を開きました: %d Hz, %d チャンネル",

		// Demuxer

		// Playback
		"Video playback started at %.3fs (first frame %.3fs)": "%.3f秒 から映像再生を開始しました (最初のフレーム %.3f秒)",
		"Audio playback started at %.3fs":                     "%.3f秒 から音声再生を開始しました",
		"Video track finished":                                "映像トラックが終了しました",
		"Audio track finished":                                "音声トラックが終了しました",
		"Seeked to %.3fs":                                     "%.3f秒 にシークしました",
		"Decoded frame at %.3fs after seek (attempt %d)":      "シーク後 %.3f秒 のフレームをデコードしました (試行 %d)",
		"Starting replay":                                     "リプレイを開始します",

		// Warnings
		"Frame skipped: %v":                                 "フレームをスキップしました: %v",
		"Decode attempt %d failed: %v":                      "デコード試行 %d が失敗しました: %v",
		"%d decode failures, seeking back to %.3fs":         "デコード失敗 %d 回。%.3f秒 まで戻ってシークします",
		"No frame decoded after seeking to %.3fs":           "%.3f秒 へのシーク後にフレームをデコードできませんでした",
		"No video frame available after %d decode attempts": "%d 回のデコード試行後も映像フレームがありません",
		"Decode error, flushing decoder: %v":                "デコードエラー。デコーダをフラッシュします: %v",
		"Audio decoder reset failed: %v":                    "音声デコーダのリセットに失敗しました: %v",
		"Decoder reset failed: %v":                          "デコーダのリセットに失敗しました: %v",
		"Decoder reconfigure failed: %v":                    "デコーダの再設定に失敗しました: %v",
		"Dropped frame at %.3fs: %v":                        "%.3f秒 のフレームを破棄しました: %v",
		"Decode after seek failed: %v":                      "シーク後のデコードに失敗しました: %v",
		"Seek back failed: %v":                              "巻き戻しシークに失敗しました: %v",

		// Errors
		"Decoder initialization failed: %v":    "デコーダの初期化に失敗しました: %v",
		"Decoder pre-configuration failed: %v": "デコーダの事前設定に失敗しました: %v",
		"Failed to send parameter sets: %v":    "パラメータセットの送信に失敗しました: %v",
		"Invalid parameter sets: %v":           "パラメータセットが不正です: %v",
		"Flush failed: %v":                     "フラッシュに失敗しました: %v",
		"Failed to write output: %s":           "出力の書き込みに失敗しました: %s",
	})
}
