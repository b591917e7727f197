package config

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// Docs maps TOML field paths (dot-separated, e.g. "supervisor.max_attempts")
// to the comment written above that field by [Config.Annotated]. A bare
// section name documents the table header.
var Docs = map[string]string{
	// ── Telegram ─────────────────────────────────────────────────
	"telegram": "Telegram Bot API connection.",
	"telegram.token_file": "JSON key file holding bot tokens, relative to the data directory.\n" +
		"Layout: {\"tgm_bots\": {\"<bot_name>\": {\"tgm_bot_token\": \"...\"}}}\n" +
		"The TGBOT_TOKEN environment variable overrides it.",
	"telegram.bot_name":                  "Entry under tgm_bots to read the token from.",
	"telegram.api_url":                   "Bot API base URL. Point at a local Bot API server if you run one.",
	"telegram.poll_timeout_seconds":      "Client-side allowance per getUpdates call, on top of the long-poll hold.",
	"telegram.long_poll_timeout_seconds": "How long the server holds getUpdates open when no update is queued.",
	"telegram.allowed_updates":           "Update kinds requested from the server.",
	"telegram.skip_pending":              "Drop updates queued while the bot was down.",

	// ── Supervisor ───────────────────────────────────────────────
	"supervisor": "Restart-on-change and retry policy.",
	"supervisor.watch_dir": "Directory watched for changes (not recursive).\n" +
		"Empty means the data directory.",
	"supervisor.watch_files": "File names or glob patterns whose modification restarts the bot.\n" +
		"Each restart re-reads this file: [telegram] and the retry policy take effect,\n" +
		"the other settings need a process restart.",
	"supervisor.watch_mode":  "\"fsnotify\" or \"poll\" (stat on an interval, for network filesystems).",
	"supervisor.max_attempts": "Failed polls in a row before the bot gives up.\n" +
		"Every failure is retried, including a rejected token.",
	"supervisor.base_delay_seconds":   "First retry delay. Doubles on each failure.",
	"supervisor.max_delay_seconds":    "Upper bound on the retry delay.",
	"supervisor.join_timeout_seconds": "How long a restart waits for the poller to wind down before giving up.",

	// ── Control ──────────────────────────────────────────────────
	"control":         "Local control socket used by tgbotctl.",
	"control.enabled": "",
	"control.socket":  "Socket path (unix) or pipe name (windows). Defaults to the data directory.",

	// ── Log ──────────────────────────────────────────────────────
	"log":             "",
	"log.level":       "trace, debug, info, warn or error",
	"log.max_size_mb": "Rotate the log file at this size.",
	"log.max_backups": "Rotated files kept.",
	"log.console":     "Mirror log output to stderr.",
}
