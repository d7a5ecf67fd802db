package compress_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	pkg "github.com/segmentio/mongo-go/compress"
	"github.com/segmentio/mongo-go/compress/snappy"
	"github.com/segmentio/mongo-go/compress/zlib"
	"github.com/segmentio/mongo-go/compress/zstd"
)

func TestCodecs(t *testing.T) {
	for i, c := range pkg.Codecs {
		if c != nil {
			if code := c.Code(); int8(code) != int8(i) {
				t.Fatal("default compression codec table is misconfigured for", c.Name())
			}
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"snappy", "zlib", "zstd"} {
		c, ok := pkg.Lookup(name)
		if !ok {
			t.Fatalf("compression %q not found", name)
		}
		if c.String() != name {
			t.Errorf("expected %q, got %q", name, c.String())
		}
	}
	if _, ok := pkg.Lookup("lz4"); ok {
		t.Error("lz4 is not a wire protocol compressor")
	}
	if s := pkg.None.String(); s != "uncompressed" {
		t.Errorf("unexpected name of the none compression: %q", s)
	}
}

func TestCompression(t *testing.T) {
	msg := []byte("message")

	testEncodeDecode(t, msg, new(snappy.Codec))
	testEncodeDecode(t, msg, new(zlib.Codec))
	testEncodeDecode(t, msg, new(zstd.Codec))
}

func TestCompressionLargeMessage(t *testing.T) {
	msg := []byte(strings.Repeat("hello world, ", 10000))

	for _, codec := range pkg.Codecs {
		if codec == nil {
			continue
		}
		b, err := compress(codec, msg)
		if err != nil {
			t.Fatal(err)
		}
		if len(b) >= len(msg) {
			t.Errorf("%s did not compress a repetitive message: %d >= %d", codec.Name(), len(b), len(msg))
		}
		r, err := decompress(codec, b)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(r, msg) {
			t.Errorf("%s: decompressed message differs from the original", codec.Name())
		}
	}
}

func TestCodecReuse(t *testing.T) {
	for _, codec := range pkg.Codecs {
		if codec == nil {
			continue
		}
		for i := 0; i < 3; i++ {
			testEncodeDecode(t, []byte("message"), codec)
		}
	}
}

func compress(codec pkg.Codec, src []byte) ([]byte, error) {
	b := new(bytes.Buffer)
	r := bytes.NewReader(src)
	w := codec.NewWriter(b)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decompress(codec pkg.Codec, src []byte) ([]byte, error) {
	b := new(bytes.Buffer)
	r := codec.NewReader(bytes.NewReader(src))
	if _, err := io.Copy(b, r); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func testEncodeDecode(t *testing.T, m []byte, codec pkg.Codec) {
	var r1, r2 []byte
	var err error

	t.Run("encode with "+codec.Name(), func(t *testing.T) {
		r1, err = compress(codec, m)
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("decode with "+codec.Name(), func(t *testing.T) {
		if r1 == nil {
			if r1, err = compress(codec, m); err != nil {
				t.Fatal(err)
			}
		}
		r2, err = decompress(codec, r1)
		if err != nil {
			t.Fatal(err)
		}
		if string(r2) != string(m) {
			t.Error("bad message")
			t.Logf("expected: %q", string(m))
			t.Logf("got:      %q", string(r2))
		}
	})
}
