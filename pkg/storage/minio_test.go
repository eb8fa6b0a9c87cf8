package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "s1/dataset/sales.csv", ObjectKey("s1", "dataset", "sales.csv"))
	assert.Equal(t, "s1/document/report.pdf", ObjectKey("s1", "document", "../../etc/report.pdf"))
	assert.Equal(t, "s1/document/report.pdf", ObjectKey("s1", "document", `C:\Users\me\report.pdf`))
	assert.Equal(t, "s1/video/upload", ObjectKey("s1", "video", ""))
}
