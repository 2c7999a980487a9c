package mockdata

// Label spaces produced by the generator.
var (
	Categories     = []string{"technical", "account", "billing", "general"}
	Priorities     = []string{"P0", "P1", "P2", "P3"}
	statuses       = []string{"new", "triaged", "in_progress", "waiting", "resolved", "closed"}
	requesterTypes = []string{"free", "paid", "enterprise", "internal"}
	channels       = []string{"email", "chat", "phone", "web_form", "api"}
	agents         = []string{"agent-001", "agent-002", "agent-003", "agent-004", "agent-005", "agent-006"}
	resolutions    = []string{"solved", "workaround", "duplicate", "wont_fix"}
)

var titleTemplates = map[string][]string{
	"technical": {
		"Cannot {action} {feature}",
		"{feature} not working",
		"Error when {action}",
		"Slow performance in {feature}",
		"{feature} crashes on {platform}",
		"Integration with {service} failing",
		"API {issue} errors",
		"Database connection {issue}",
		"{feature} timeout errors",
	},
	"account": {
		"Update {field} on account",
		"Cannot {action} team members",
		"User permissions not {state}",
		"Need to {action} subscription",
		"Delete my account and data",
		"Forgot {credential}",
		"Change {setting} settings",
		"Account {issue} issue",
	},
	"billing": {
		"Payment {issue}",
		"{issue} charge on credit card",
		"Invoice {action} for last month",
		"Billing cycle {action} request",
		"Refund request for {reason}",
		"Promo code not {state}",
		"Subscription {action} failed",
		"Need invoice with {requirement}",
	},
	"general": {
		"How to {action}",
		"Feature request: {feature}",
		"Request documentation for {topic}",
		"Question about {topic}",
		"Need training for {purpose}",
		"Request access to {feature}",
		"Feedback on {feature}",
		"Suggestion: {feature}",
	},
}

var substitutions = map[string][]string{
	"action":      {"access", "login", "export", "import", "update", "change", "add", "remove", "configure"},
	"feature":     {"dashboard", "reports", "analytics", "API", "mobile app", "notifications", "webhooks", "workflows"},
	"platform":    {"iOS", "Android", "Chrome", "Firefox", "Safari", "Windows", "macOS", "Linux"},
	"service":     {"Salesforce", "Slack", "Google Sheets", "Zapier", "HubSpot", "Jira", "GitHub"},
	"issue":       {"failed", "timeout", "rate limit", "connection", "authentication", "authorization"},
	"field":       {"email address", "name", "timezone", "language", "phone number"},
	"state":       {"applying", "working", "loading", "syncing", "enabled"},
	"credential":  {"password", "username", "API key", "2FA device"},
	"setting":     {"notification", "privacy", "security", "team", "billing"},
	"reason":      {"unused subscription", "duplicate charge", "cancellation", "service issue"},
	"requirement": {"VAT number", "tax ID", "PO number", "billing address"},
	"topic":       {"pricing", "features", "API", "security", "compliance", "integrations"},
	"purpose":     {"new team members", "onboarding", "advanced features", "API usage"},
}

var tagPools = map[string][]string{
	"technical": {"bug", "performance", "api", "integration", "mobile", "web", "crash", "error", "timeout", "authentication", "authorization"},
	"account":   {"account-management", "permissions", "team", "user", "subscription", "profile", "settings", "privacy"},
	"billing":   {"payment", "invoice", "refund", "subscription", "pricing", "discount", "promo-code", "tax", "vat"},
	"general":   {"how-to", "feature-request", "documentation", "training", "feedback", "question", "sales"},
}

var (
	intros = []string{
		"I'm experiencing an issue where",
		"For the past few hours,",
		"Since this morning,",
		"I've noticed that",
		"When I try to",
		"I'm having trouble with",
	}
	details = []string{
		"This is affecting our team's productivity.",
		"I've tried the standard troubleshooting steps.",
		"This only started after the recent update.",
		"Other users in my organization are having the same issue.",
		"I've checked the documentation but couldn't find a solution.",
		"This is urgent as it's blocking our work.",
	}
	closings = []string{
		"Can you please help me resolve this?",
		"Please investigate as soon as possible.",
		"Any guidance would be appreciated.",
		"Looking forward to your response.",
		"Please let me know what information you need from me.",
	}
)
