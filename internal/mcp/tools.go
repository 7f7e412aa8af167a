package mcp

import "github.com/mark3labs/mcp-go/mcp"

var logToolDef = mcp.NewTool("life_log",
	mcp.WithDescription("Record a life event from a plain-language message, e.g. \"I spent $35 on lunch\" or \"Feeling tired today\". The message is classified as an expense, todo, mood or health record and stored. Messages that match no rule are not stored (logged: false)."),
	mcp.WithTitleAnnotation("Log Life Event"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(false),
	mcp.WithOpenWorldHintAnnotation(false),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("What happened, in the user's words"),
	),
)

var listToolDef = mcp.NewTool("life_list",
	mcp.WithDescription("List stored records, newest first."),
	mcp.WithTitleAnnotation("List Records"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("type",
		mcp.Description("Filter by type: all (default), expense, todo, mood, health, note"),
	),
	mcp.WithString("window",
		mcp.Description("Time window"),
		mcp.Enum("all", "today", "week", "month"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Max records (default: 50, max: 1000)"),
	),
)

var getToolDef = mcp.NewTool("life_get",
	mcp.WithDescription("Fetch one record by id."),
	mcp.WithTitleAnnotation("Get Record"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
)

var deleteToolDef = mcp.NewTool("life_delete",
	mcp.WithDescription("Delete one record by id. Deleted ids are never reused."),
	mcp.WithTitleAnnotation("Delete Record"),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithNumber("id",
		mcp.Required(),
		mcp.Description("Record id"),
	),
)

var reportToolDef = mcp.NewTool("life_report",
	mcp.WithDescription("Summarize stored records: counts per type plus expense totals by category, mood distribution and todo completion. The record type and time window are inferred from the query unless given explicitly."),
	mcp.WithTitleAnnotation("Life Report"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("query",
		mcp.Description("Free-text request, e.g. \"Show me my expenses this month\""),
	),
	mcp.WithString("type",
		mcp.Description("Override the inferred type: all, expense, todo, mood, health, note"),
	),
	mcp.WithString("window",
		mcp.Description("Override the inferred time window"),
		mcp.Enum("all", "today", "week", "month"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Records shown per type in the markdown (default: 5)"),
	),
)

var exportToolDef = mcp.NewTool("life_export",
	mcp.WithDescription("Write every record to a JSON backup file. Defaults to <home>/exports/onelife-backup-YYYY-MM-DD.json."),
	mcp.WithTitleAnnotation("Export Backup"),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("path",
		mcp.Description("Destination .json file (must be directly in the exports dir or an allowed path)"),
	),
)

var importToolDef = mcp.NewTool("life_import",
	mcp.WithDescription("Add the records of a JSON backup file. Every imported record gets a new id; existing records are kept. Records that fail validation are reported and skipped."),
	mcp.WithTitleAnnotation("Import Backup"),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Backup .json file to read"),
	),
)

var clearToolDef = mcp.NewTool("life_clear",
	mcp.WithDescription("Delete ALL records. Needs two confirmations: call without a token to get the first prompt and token, show the prompt to the user, then call again with the token after each explicit yes. Tokens expire after two minutes."),
	mcp.WithTitleAnnotation("Clear All Data"),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("token",
		mcp.Description("Confirmation token from the previous call"),
	),
)

var settingsGetToolDef = mcp.NewTool("settings_get",
	mcp.WithDescription("Show the assistant settings. The API key is masked unless reveal is true."),
	mcp.WithTitleAnnotation("Get Settings"),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithBoolean("reveal",
		mcp.Description("Include the API key in clear text"),
	),
)

var settingsSetToolDef = mcp.NewTool("settings_set",
	mcp.WithDescription("Change assistant settings. Only given fields change. Set reset to restore the defaults."),
	mcp.WithTitleAnnotation("Set Settings"),
	mcp.WithString("endpoint_url", mcp.Description("Completion endpoint base URL (http or https)")),
	mcp.WithString("model", mcp.Description("Model name")),
	mcp.WithString("api_key", mcp.Description("API key sent as a bearer token")),
	mcp.WithNumber("temperature", mcp.Description("Sampling temperature, 0 to 2")),
	mcp.WithNumber("max_tokens", mcp.Description("Reply length limit, 1 to 32768")),
	mcp.WithBoolean("encryption", mcp.Description("Encryption preference (stored, not enforced)")),
	mcp.WithBoolean("notifications", mcp.Description("Enable notifications")),
	mcp.WithBoolean("reset", mcp.Description("Restore defaults; other fields are ignored")),
)
