// Package routes extracts HTTP route descriptors from concept sources.
//
// A route is a method decorated with @Router.<method>("/path"), optionally
// preceded by // comment lines that become its description:
//
//	// Fetch a user by id.
//	@Router.get("/users/:id")
//	async getUser(session: WebSessionDoc, id: string) {
//	  ...
//	}
//
// The function body is located by balanced-brace scanning; a decorator
// whose body never balances is skipped.
package routes

import (
	"regexp"
	"strings"
)

// Route describes one decorated handler.
type Route struct {
	Name        string   `json:"name" yaml:"name"`
	Method      string   `json:"method" yaml:"method"`
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	Params      []string `json:"params" yaml:"params"`
	Description string   `json:"description" yaml:"description,omitempty"`
	Code        string   `json:"code" yaml:"code"`
}

// SessionParam is the implicit session argument, omitted from Params.
const SessionParam = "session"

var (
	// Zero or more indented comment lines, then the decorator.
	decoratorRe = regexp.MustCompile(`(//.*\n\s+)*@Router\.\w+\(["']/.*?["']\)`)
	nameRe      = regexp.MustCompile(`async\s(\w+)`)
	commentRe   = regexp.MustCompile(`//\s?`)
)

// Parse returns every route found in code, in source order.
func Parse(code string) []Route {
	var out []Route
	for _, loc := range decoratorRe.FindAllStringIndex(code, -1) {
		if r, ok := parseAt(code, loc[0]); ok {
			out = append(out, r)
		}
	}
	return out
}

func parseAt(code string, start int) (Route, bool) {
	// Skip leading comment lines.
	body := start
	for body < len(code) && code[body] == '/' {
		nl := strings.IndexByte(code[body:], '\n')
		if nl < 0 {
			return Route{}, false
		}
		body += nl
		for body < len(code) && isSpace(code[body]) {
			body++
		}
	}
	comment := code[start:body]

	open := strings.IndexByte(code[body:], '{')
	if open < 0 {
		return Route{}, false
	}
	open += body

	end, ok := matchBrace(code, open)
	if !ok {
		return Route{}, false
	}

	fn := code[body : end+1]
	return Route{
		Name:        handlerName(fn),
		Method:      decoratorMethod(fn),
		Endpoint:    decoratorPath(fn),
		Params:      params(fn),
		Description: description(comment),
		Code:        fn,
	}, true
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(code string, open int) (int, bool) {
	depth := 1
	for i := open + 1; i < len(code); i++ {
		switch code[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func description(comment string) string {
	lines := strings.Split(comment, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if loc := commentRe.FindStringIndex(line); loc != nil {
			line = line[:loc[0]] + line[loc[1]:]
		}
		lines[i] = line
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func handlerName(fn string) string {
	if m := nameRe.FindStringSubmatch(fn); m != nil {
		return m[1]
	}
	return ""
}

// decoratorMethod returns "get" from `@Router.get("/x")`.
func decoratorMethod(fn string) string {
	head, _, _ := strings.Cut(fn, "(")
	parts := strings.Split(head, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// decoratorPath returns the quoted path inside the decorator parentheses.
func decoratorPath(fn string) string {
	open := strings.IndexByte(fn, '(')
	if open < 0 {
		return ""
	}
	closeIdx := indexFrom(fn, ')', open+1)
	if closeIdx < 0 || closeIdx-1 < open+2 {
		return ""
	}
	return fn[open+2 : closeIdx-1]
}

// params returns the handler's parameter names, excluding session.
func params(fn string) []string {
	open := strings.IndexByte(fn, '(')
	if open < 0 {
		return []string{}
	}
	decoClose := indexFrom(fn, ')', open+1)
	if decoClose < 0 {
		return []string{}
	}
	pOpen := indexFrom(fn, '(', decoClose+1)
	if pOpen < 0 {
		return []string{}
	}
	pClose := indexFrom(fn, ')', pOpen+1)
	if pClose < 0 || pClose == pOpen+1 {
		return []string{}
	}

	out := []string{}
	for _, p := range strings.Split(fn[pOpen+1:pClose], ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(p), ":")
		name = strings.TrimSpace(name)
		if name == "" || name == SessionParam {
			continue
		}
		out = append(out, name)
	}
	return out
}

func indexFrom(s string, c byte, from int) int {
	if from > len(s) {
		return -1
	}
	i := strings.IndexByte(s[from:], c)
	if i < 0 {
		return -1
	}
	return i + from
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
