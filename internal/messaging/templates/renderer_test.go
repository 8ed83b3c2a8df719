package templates

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererRender(t *testing.T) {
	var r Renderer
	out, err := r.Render("greet", "Hello {{.Name}}", map[string]string{"Name": "Dilnoza"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Dilnoza", out)

	_, err = r.Render("bad", "Hello {{.Missing}}", map[string]string{"Name": "x"})
	assert.Error(t, err, "missing keys must fail")

	_, err = r.Render("empty", "", nil)
	assert.Error(t, err)
}

func TestRendererConcurrentUse(t *testing.T) {
	var r Renderer
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Render("reminder", "See you at {{.Time}}", map[string]string{"Time": "10:00"})
			assert.NoError(t, err)
			assert.Equal(t, "See you at 10:00", out)
		}()
	}
	wg.Wait()
}
