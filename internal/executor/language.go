package executor

import "path"

// Language is the closed set of execution dispatch targets. Unknown tags
// map to LangFallback, which prints the stored source verbatim instead of
// failing; that degraded behavior is deliberate.
type Language int

const (
	LangFallback Language = iota
	LangJavaScript
	LangPython
	LangCPP
	LangC
	LangJava
	LangBash
)

// ParseLanguage maps a wire tag to a Language. Unrecognized tags yield
// LangFallback deterministically.
func ParseLanguage(tag string) Language {
	switch tag {
	case "javascript":
		return LangJavaScript
	case "python":
		return LangPython
	case "cpp":
		return LangCPP
	case "c":
		return LangC
	case "java":
		return LangJava
	case "bash":
		return LangBash
	default:
		return LangFallback
	}
}

func (l Language) String() string {
	switch l {
	case LangJavaScript:
		return "javascript"
	case LangPython:
		return "python"
	case LangCPP:
		return "cpp"
	case LangC:
		return "c"
	case LangJava:
		return "java"
	case LangBash:
		return "bash"
	default:
		return "fallback"
	}
}

// Ext returns the file extension for the materialized source file.
func (l Language) Ext() string {
	switch l {
	case LangJavaScript:
		return "js"
	case LangPython:
		return "py"
	case LangCPP:
		return "cpp"
	case LangC:
		return "c"
	case LangJava:
		return "java"
	case LangBash:
		return "sh"
	default:
		return "txt"
	}
}

// Command returns the shell command that runs the materialized source at
// file. Compiled languages build into the same directory and run the
// produced binary; Java runs class Code per the runtime image convention.
func (l Language) Command(file string) string {
	dir := path.Dir(file)
	bin := path.Join(dir, "code")

	switch l {
	case LangJavaScript:
		return "node " + file
	case LangPython:
		return "python3 " + file
	case LangCPP:
		return "g++ -o " + bin + " " + file + " && " + bin
	case LangC:
		return "gcc -o " + bin + " " + file + " && " + bin
	case LangJava:
		return "javac " + file + " && java -cp " + dir + " Code"
	case LangBash:
		return "bash " + file
	default:
		return "cat " + file
	}
}
