package memstore

import "github.com/JustinTDCT/CineHub/internal/models"

// AddImage stores a non-poster image inside a transaction.
func (t *Tx) AddImage(img models.MediaImage) {
	t.st.images[img.MediaID] = append(t.st.images[img.MediaID], img)
}
