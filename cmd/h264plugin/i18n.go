// Package main provides localization for the h264plugin CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Decoder":       "デコーダ",
		"Logging":       "ログ",
		"Output":        "出力",
		"Playback":      "再生",

		// Root command
		"Decode and play H.264/AAC MP4 files": "H.264/AAC の MP4 ファイルをデコード・再生",

		// Commands
		"Show the tracks of an MP4 file":                                 "MP4 ファイルのトラックを表示",
		"Decode every frame of an MP4 file":                              "MP4 ファイルの全フレームをデコード",
		"Play an MP4 file with audio/video sync":                         "音声と映像を同期して MP4 ファイルを再生",
		"Decode the video track through the native library entry points": "ネイティブライブラリのエントリポイントで映像トラックをデコード",

		// Global flags
		"YAML configuration file": "YAML 設定ファイル",
		"Decoder backend (auto, native, videotoolbox, mediafoundation, ffmpeg)": "デコーダバックエンド（auto, native, videotoolbox, mediafoundation, ffmpeg）",
		"Path to the ffmpeg executable":                                         "ffmpeg 実行ファイルのパス",
		"Path to the plugin_h264 library":                                       "plugin_h264 ライブラリのパス",
		"Skip the audio track":                                                  "音声トラックをスキップ",
		"Log level (debug, info, warn, error)":                                  "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                                               "全てのログ出力を抑制",

		// Decode flags
		"Output directory":                            "出力ディレクトリ",
		"Write every frame as PNG":                    "全フレームを PNG で書き出す",
		"Write a contact sheet of sampled frames":     "抽出したフレームのコンタクトシートを書き出す",
		"Sample one frame in N for the contact sheet": "コンタクトシート用に N フレームごとに 1 枚を抽出",
		"Stop after N video frames (0 = all)":         "映像 N フレームで停止（0 = 全て）",
		"Start position in seconds":                   "開始位置（秒）",

		// Play flags
		"Stop after N seconds (0 = until the end)": "N 秒で停止（0 = 最後まで）",
		"Play audio on the system output":          "システムの出力で音声を再生",
		"Run as fast as decoding allows":           "デコードできる限り高速に実行",

		// Output
		"File: %s":        "ファイル: %s",
		"Duration: %.3fs": "再生時間: %.3f秒",
		"Track %d: %s %s %dx%d, %d samples, %.3fs":       "トラック %d: %s %s %dx%d, %d サンプル, %.3f秒",
		"Track %d: %s %s %d Hz %d ch, %d samples, %.3fs": "トラック %d: %s %s %d Hz %d ch, %d サンプル, %.3f秒",
		"Pictures: %d, need more data: %d":               "画像: %d, データ不足: %d",
		"Result %d (%s): %d":                             "結果 %d (%s): %d",

		"Write a Markdown decode report to this file": "Markdown 形式のデコードレポートを書き出す",

		// Decode report
		"Decode Summary": "デコードサマリー",
		"Generated":      "生成日時",
		"Input":          "入力",
		"File":           "ファイル",
		"File Size":      "ファイルサイズ",
		"Duration":       "再生時間",
		"Tracks":         "トラック",
		"Type":           "種類",
		"Codec":          "コーデック",
		"Format":         "形式",
		"Samples":        "サンプル数",
		"Results":        "実行結果",
		"Video Frames":   "映像フレーム数",
		"Keyframes":      "キーフレーム数",
		"Audio Frames":   "音声フレーム数",
		"Decode Errors":  "デコードエラー数",
		"Picture Size":   "画像サイズ",
		"Elapsed":        "処理時間",
		"Decode Speed":   "デコード速度",
		"Settings":       "設定",
		"Backend":        "バックエンド",
		"Audio":          "音声",
		"Enabled":        "有効",
		"Disabled":       "無効",
		"Start":          "開始位置",
		"Max Frames":     "最大フレーム数",
		"All":            "全て",
		"Item":           "項目",
		"Value":          "値",
		"Generated by":   "生成:",

		// Errors
		"An input file argument is required": "入力ファイルの引数が必要です",
	})
}
