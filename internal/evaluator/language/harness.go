package language

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// CodePlaceholder marks where a problem-provided harness takes the user code.
const CodePlaceholder = "{code}"

const (
	frameOK  = ":OK\n"
	frameErr = ":ERR\n"
	frameEnd = ":END"
)

// newMarker returns a random frame marker. User output cannot contain it
// by accident, so a printed frame always comes from the harness.
func newMarker() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "__PRACTICE_" + strings.ToUpper(hex.EncodeToString(b[:])) + "__"
}

// renderWithHarness substitutes user code into a problem-provided template.
func renderWithHarness(template, code string) string {
	return strings.Replace(template, CodePlaceholder, code, 1)
}

const jsHarness = `{code}

;(function () {
  const __fs = require('fs');
  const __mark = '{marker}';
  const __emit = (kind, text) => {
    __fs.writeSync(1, '\n' + __mark + ':' + kind + '\n' + text + '\n' + __mark + ':END\n');
  };
  const __format = (value) => {
    if (typeof value === 'string') return value;
    if (value === undefined) return 'null';
    try {
      const text = JSON.stringify(value);
      return text === undefined ? String(value) : text;
    } catch (e) {
      return String(value);
    }
  };
  let __args;
  try {
    __args = JSON.parse(__fs.readFileSync(0, 'utf8'));
  } catch (e) {
    __emit('ERR', 'invalid arguments: ' + e.message);
    process.exitCode = 1;
    return;
  }
  Promise.resolve()
    .then(() => {call}(...__args))
    .then(
      (value) => __emit('OK', __format(value)),
      (err) => {
        __emit('ERR', err && err.message ? err.message : String(err));
        process.exitCode = 1;
      },
    );
})();
`

const pyHarness = `{code}


def __practice_main():
    import json as __json
    import sys as __sys

    __mark = "{marker}"

    def __emit(kind, text):
        __sys.stdout.flush()
        __sys.stdout.write("\n" + __mark + ":" + kind + "\n" + text + "\n" + __mark + ":END\n")
        __sys.stdout.flush()

    try:
        __args = __json.loads(__sys.stdin.read())
        __value = {call}(*__args)
        if isinstance(__value, str):
            __text = __value
        else:
            try:
                __text = __json.dumps(__value, separators=(",", ":"))
            except (TypeError, ValueError):
                __text = str(__value)
    except RecursionError:
        __emit("ERR", "maximum recursion depth exceeded")
        __sys.exit(1)
    except Exception as __e:
        __emit("ERR", str(__e) or type(__e).__name__)
        __sys.exit(1)
    __emit("OK", __text)


__practice_main()
`

// renderFunctionHarness wraps code so the entry point is called with the
// JSON arguments read from stdin and its result printed in a frame.
func renderFunctionHarness(lang ID, code string, ep EntryPoint, marker string) (string, bool) {
	call := ep.Name
	var tpl string
	switch lang {
	case JavaScript:
		tpl = jsHarness
		if ep.Receiver != "" {
			call = "new " + ep.Receiver + "()." + ep.Name
		}
	case Python:
		tpl = pyHarness
		if ep.Receiver != "" {
			call = ep.Receiver + "()." + ep.Name
		}
	default:
		return "", false
	}
	r := strings.NewReplacer("{marker}", marker, "{call}", call)
	// Code goes in last so placeholders inside user code stay untouched.
	return strings.Replace(r.Replace(tpl), CodePlaceholder, code, 1), true
}

// frame is the harness report extracted from stdout.
type frame struct {
	ok    bool
	text  string
	found bool
}

// parseFrame finds the last complete frame for marker in stdout.
func parseFrame(stdout, marker string) frame {
	end := strings.LastIndex(stdout, marker+frameEnd)
	if end < 0 {
		return frame{}
	}
	head := stdout[:end]
	okAt := strings.LastIndex(head, marker+frameOK)
	errAt := strings.LastIndex(head, marker+frameErr)
	switch {
	case okAt < 0 && errAt < 0:
		return frame{}
	case okAt > errAt:
		return frame{ok: true, text: trimFrameText(head[okAt+len(marker)+len(frameOK):]), found: true}
	default:
		return frame{ok: false, text: trimFrameText(head[errAt+len(marker)+len(frameErr):]), found: true}
	}
}

func trimFrameText(s string) string {
	return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
}
