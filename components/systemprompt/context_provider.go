package systemprompt

// ContextProvider is an interface that defines the title and info of a context provider
type ContextProvider interface {
	Title() string
	Info() string
}

// Static is a ContextProvider with fixed content
type Static struct {
	title string
	info  string
}

var _ ContextProvider = (*Static)(nil)

func NewStatic(title string, info string) *Static {
	return &Static{title: title, info: info}
}

func (s *Static) Title() string {
	return s.title
}

func (s *Static) Info() string {
	return s.info
}
