package export

// Field is a labelled value printed above the table body.
type Field struct {
	Label string
	Value string
}

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Meta    []Field
	Headers []string
	Rows    []map[string]string
}

// Renderer turns a dataset into an encoded document.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	Extension() string
	ContentType() string
}
