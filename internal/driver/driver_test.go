package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/recordmanager/internal/rmerror"
)

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New("marc21xml-not-registered", nil, "oai:1", "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, rmerror.ErrUnsupportedFormat)
}

func TestDCDriver_FeaturesAndID(t *testing.T) {
	xml := `<dc>
		<title>The Art of Computer Programming</title>
		<creator>Knuth, Donald</creator>
		<identifier>0-201-03801-3</identifier>
		<type>book</type>
		<date>1997-01-01</date>
	</dc>`

	d, err := New("dc", []byte(xml), "oai:1", "s1")
	require.NoError(t, err)

	d.Normalize()
	f := d.Features()
	assert.Equal(t, "The Art of Computer Programming", f.Title)
	assert.Equal(t, "Knuth, Donald", f.MainAuthor)
	assert.Equal(t, []string{"0-201-03801-3"}, f.ISBNs)
	assert.True(t, f.HasPublicationYear)
	assert.Equal(t, 1997, f.PublicationYear)
}

func TestForwardDriver_RoundTrip(t *testing.T) {
	payload := `{"id":"rec-1","title":"Dune","author":"Herbert, Frank","isbns":["9780441013593"],"year":1965}`

	d, err := New("forward", []byte(payload), "", "s2")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", d.ID())

	f := d.Features()
	assert.Equal(t, "Dune", f.Title)
	assert.Equal(t, 1965, f.PublicationYear)

	doc, err := d.ToSolrArray()
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, doc["title_t"])
}
