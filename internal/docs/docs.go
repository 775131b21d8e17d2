// Package docs embeds the markdown topics printed by `planeview docs`.
package docs

import (
	"bufio"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed content/*.md
var contentFS embed.FS

type Topic struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Topics lists the embedded topics by name. Title is the first heading.
func Topics() []Topic {
	entries, err := fs.Glob(contentFS, "content/*.md")
	if err != nil {
		return []Topic{}
	}
	out := make([]Topic, 0, len(entries))
	for _, p := range entries {
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))
		if name == "" {
			continue
		}
		body, _ := contentFS.ReadFile(p)
		out = append(out, Topic{Name: name, Title: title(string(body))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Get(topic string) (string, bool) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" || strings.ContainsAny(topic, `/\`) {
		return "", false
	}
	b, err := contentFS.ReadFile(path.Join("content", topic+".md"))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func title(md string) string {
	sc := bufio.NewScanner(strings.NewReader(md))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}
