package pages

// Attrs are the data attributes of the element that triggered an action.
type Attrs map[string]string

// Modal shows a receipt image over the page
type Modal interface {
	Open(imageURL string)
	Close()
}

// ModalState is a Modal that remembers what to render
type ModalState struct {
	url string
}

func (m *ModalState) Open(imageURL string) {
	m.url = imageURL
}

func (m *ModalState) Close() {
	m.url = ""
}

// URL returns the image shown, or "" when closed
func (m *ModalState) URL() string {
	return m.url
}

// openReceipt shows the image named by the icon's data-bill-url
func openReceipt(m Modal, icon Attrs) {
	if m == nil {
		return
	}
	m.Open(icon["data-bill-url"])
}
