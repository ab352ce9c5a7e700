package language

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoEntryPoint means the code declares nothing the harness can call.
var ErrNoEntryPoint = errors.New("no entry point found")

// EntryPoint is what a rendered program invokes.
type EntryPoint struct {
	// Name is the function or method to call in function mode.
	Name string
	// Receiver is set when Name is a method of a class the harness instantiates.
	Receiver string
	// Class is the Java class holding main.
	Class string
}

var (
	jsFunctionDecl = regexp.MustCompile(`(?m)^(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	jsArrowDecl    = regexp.MustCompile(`(?m)^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

	pyFunctionDecl = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pySolutionDecl = regexp.MustCompile(`(?m)^class\s+Solution\b`)
	pyMethodDecl   = regexp.MustCompile(`(?m)^[ \t]+def\s+([A-Za-z]\w*)\s*\(\s*self\b`)

	javaMainDecl  = regexp.MustCompile(`\bpublic\s+static\s+void\s+main\s*\(`)
	javaClassDecl = regexp.MustCompile(`\bclass\s+([A-Za-z_$][\w$]*)`)
	cppMainDecl   = regexp.MustCompile(`(?m)^\s*(?:signed\s+)?int\s+main\s*\(`)
)

// FindEntryPoint locates the entry point for mode. A non-empty name must
// be declared in the code; otherwise the language's discovery rule applies.
func FindEntryPoint(lang ID, mode Mode, code, name string) (EntryPoint, error) {
	code = stripComments(lang, code)
	if mode == ModeStdio {
		return findMain(lang, code)
	}
	if name != "" {
		return findNamed(lang, code, name)
	}
	switch lang {
	case JavaScript:
		return firstDecl(code, jsFunctionDecl, jsArrowDecl)
	case Python:
		if ep, err := firstDecl(code, pyFunctionDecl); err == nil {
			return ep, nil
		}
		if pySolutionDecl.MatchString(code) {
			if m := pyMethodDecl.FindStringSubmatch(code); m != nil {
				return EntryPoint{Name: m[1], Receiver: "Solution"}, nil
			}
		}
		return EntryPoint{}, ErrNoEntryPoint
	default:
		return findMain(lang, code)
	}
}

// HasDeclaration reports whether code declares name for lang. Harness
// templates call into user code by name, so the name must exist.
func HasDeclaration(lang ID, code, name string) bool {
	_, err := findNamed(lang, stripComments(lang, code), name)
	return err == nil
}

func findNamed(lang ID, code, name string) (EntryPoint, error) {
	quoted := regexp.QuoteMeta(name)
	var patterns []string
	switch lang {
	case JavaScript:
		patterns = []string{
			`\bfunction\s*\*?\s*` + quoted + `\s*\(`,
			`\b(?:const|let|var)\s+` + quoted + `\s*=`,
		}
	case Python:
		if regexp.MustCompile(`(?m)^(?:async\s+)?def\s+` + quoted + `\s*\(`).MatchString(code) {
			return EntryPoint{Name: name}, nil
		}
		if pySolutionDecl.MatchString(code) && regexp.MustCompile(`(?m)^[ \t]+def\s+`+quoted+`\s*\(\s*self\b`).MatchString(code) {
			return EntryPoint{Name: name, Receiver: "Solution"}, nil
		}
		return EntryPoint{}, ErrNoEntryPoint
	default:
		// return type, name, parameter list
		patterns = []string{`[\w>\]&*]\s+` + quoted + `\s*\(`}
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(code) {
			return EntryPoint{Name: name}, nil
		}
	}
	return EntryPoint{}, ErrNoEntryPoint
}

func findMain(lang ID, code string) (EntryPoint, error) {
	switch lang {
	case Java:
		loc := javaMainDecl.FindStringIndex(code)
		if loc == nil {
			return EntryPoint{}, ErrNoEntryPoint
		}
		// The class declaring main is the closest class header before it.
		classes := javaClassDecl.FindAllStringSubmatchIndex(code[:loc[0]], -1)
		if len(classes) == 0 {
			return EntryPoint{}, ErrNoEntryPoint
		}
		last := classes[len(classes)-1]
		return EntryPoint{Name: "main", Class: code[last[2]:last[3]]}, nil
	case Cpp:
		if cppMainDecl.MatchString(code) {
			return EntryPoint{Name: "main"}, nil
		}
		return EntryPoint{}, ErrNoEntryPoint
	default:
		// Interpreted stdio programs run top to bottom.
		if strings.TrimSpace(code) == "" {
			return EntryPoint{}, ErrNoEntryPoint
		}
		return EntryPoint{}, nil
	}
}

func firstDecl(code string, patterns ...*regexp.Regexp) (EntryPoint, error) {
	best := -1
	name := ""
	for _, p := range patterns {
		m := p.FindStringSubmatchIndex(code)
		if m == nil {
			continue
		}
		if best == -1 || m[0] < best {
			best = m[0]
			name = code[m[2]:m[3]]
		}
	}
	if name == "" {
		return EntryPoint{}, ErrNoEntryPoint
	}
	return EntryPoint{Name: name}, nil
}

var (
	cStyleComments = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)
	hashComments   = regexp.MustCompile(`(?m)#[^\n]*$`)
)

// stripComments blanks comments so commented-out declarations are not
// mistaken for real ones. String literals are not parsed; a "//" inside a
// string only loses the rest of that line, which holds no declaration.
func stripComments(lang ID, code string) string {
	switch lang {
	case Python:
		return hashComments.ReplaceAllString(code, "")
	default:
		return cStyleComments.ReplaceAllString(code, "")
	}
}
