package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/soumithganji/DineLytics/internal/engine"
	"github.com/soumithganji/DineLytics/internal/textutil"
)

// Prompt size bounds.
const (
	repairErrorLimit  = 500
	formatOutputLimit = 3000
)

const (
	generateSystem = "You are a MongoDB/Python expert. Return only executable Python code."
	repairSystem   = "Fix the Python code. Return only executable code."
	formatSystem   = "You are a data analyst. Present results clearly and concisely."
)

// DefaultCollections is the collection inventory of the restaurant database.
var DefaultCollections = []string{
	"categories", "delivery_fees", "locations", "merchant_logs", "merchant_settings",
	"orders", "product_categories", "products", "stores", "store_tables", "users",
}

// itemHint renders resolved item names for the generation prompt, or "".
func itemHint(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "Food name variations found in database: " + strings.Join(items, ", ")
}

func generateMessages(query string, today time.Time, collections []string, items []string, schema string) []engine.Message {
	var b strings.Builder
	b.WriteString("Generate Python/pymongo code for this query. Return ONLY a python code block.\n\n")
	fmt.Fprintf(&b, "Query: %s\n", textutil.Quote(query))
	fmt.Fprintf(&b, "Today: %s\n", today.Format(time.DateOnly))
	b.WriteString("MongoDB URI env var: mongodb_uri   Database env var: database_name\n")
	fmt.Fprintf(&b, "Collections: %s\n", strings.Join(collections, ", "))
	hint := itemHint(items)
	if hint != "" {
		b.WriteString(hint + "\n")
	}
	b.WriteString("\nDATABASE SCHEMAS:\n")
	b.WriteString(schema)
	b.WriteString("\n\nRULES:\n")
	b.WriteString("- Connect: MongoClient(os.getenv('mongodb_uri')), db = client[os.getenv('database_name')]\n")
	b.WriteString("- orders.details[] is an array, use $unwind. details[].name=item, details[].price=unit price, details[].qty=quantity, details[].total_amount=item total\n")
	b.WriteString("- orders.total_amount = entire order total\n")
	b.WriteString("- Case-insensitive regex ($options:'i') for ALL name filters\n")
	b.WriteString(`- IMPORTANT: When matching food item names, use a CONTAINS regex (no ^ or $ anchors). Product names often include extra words (e.g. "Pepperoni Pizza" not just "Pizza"). Use {"$regex": "pizza", "$options": "i"} NOT {"$regex": "^pizza$"}` + "\n")
	if hint != "" {
		fmt.Fprintf(&b, `- For food items, use $regex with alternation for these exact names from the database: %s. Example: {"$regex": "name1|name2|name3", "$options": "i"}`+"\n", hint)
	}
	b.WriteString(`- Date handling: no time period mentioned = NO date filter. "last month" = prev calendar month. "this month" = current month. "today" = today only.` + "\n")
	b.WriteString("- Output: print(json.dumps(results, default=str))\n\n")
	b.WriteString("Return ONLY the Python code inside ```python ... ``` fences. No explanation.")

	return []engine.Message{
		{Role: engine.RoleSystem, Content: generateSystem},
		{Role: engine.RoleUser, Content: b.String()},
	}
}

func repairMessages(code, output string) []engine.Message {
	var b strings.Builder
	b.WriteString("The code below produced an error. Fix it and return ONLY the corrected python code block.\n\n")
	b.WriteString("Code:\n```python\n")
	b.WriteString(code)
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "Error: %s\n\n", textutil.Truncate(output, repairErrorLimit))
	b.WriteString("Return ONLY the fixed Python code inside ```python ... ``` fences.")

	return []engine.Message{
		{Role: engine.RoleSystem, Content: repairSystem},
		{Role: engine.RoleUser, Content: b.String()},
	}
}

func formatMessages(query, output string) []engine.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Format this data as a direct answer to: %s\n\n", textutil.Quote(query))
	fmt.Fprintf(&b, "Raw data: %s\n\n", textutil.Truncate(output, formatOutputLimit))
	b.WriteString("Rules:\n")
	b.WriteString("- Multiple rows: Markdown table (blank line before, each row on new line)\n")
	b.WriteString(`- Single metric: concise sentence (e.g. "Total revenue is $12,345.00")` + "\n")
	b.WriteString("- No data/empty: polite explanation\n")
	b.WriteString(`- Format financial values with "$" (e.g. $1,234.50)` + "\n")
	b.WriteString("- Month numbers to names, week numbers to date ranges\n")
	b.WriteString("- Use human-readable names, not IDs\n")
	b.WriteString("- ONLY answer what was asked. No technical details about queries.\n")
	b.WriteString("- Do NOT use a table for single-value answers.")

	return []engine.Message{
		{Role: engine.RoleSystem, Content: formatSystem},
		{Role: engine.RoleUser, Content: b.String()},
	}
}
