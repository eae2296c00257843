package curate

// Sections follow a fixed source-kind taxonomy so the same inputs always
// produce the same structure.

type sectionDef struct {
	Title string
	Tag   string
}

var sectionOrder = []string{"github", "hackernews", "trending", "reading"}

var sectionDefs = map[string]sectionDef{
	"github":     {Title: "Repositories to Watch", Tag: "🚀"},
	"hackernews": {Title: "Community Discussions", Tag: "💬"},
	"trending":   {Title: "Trending Stories", Tag: "🔥"},
	"reading":    {Title: "Deep Reading", Tag: "📚"},
}

// sectionKey maps a source kind onto the taxonomy; unknown kinds land in
// the reading section.
func sectionKey(kind string) string {
	if _, ok := sectionDefs[kind]; ok && kind != "reading" {
		return kind
	}
	return "reading"
}
