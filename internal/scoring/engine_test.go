package scoring

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/decode"
	"github.com/danielpatrickdp/barcode-blackbox/go-harness/internal/fixture"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region fakes

// tag returns a uniform 2x2 image whose gray level identifies it to fakeDecoder.
func tag(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func tagOf(img image.Image) uint8 {
	return color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y
}

// fakeDecoder answers by image tag and records every hint set it was called with.
type fakeDecoder struct {
	results  map[uint8]*decode.Result
	pureFail bool // fail whenever PURE_BARCODE is set
	calls    []decode.Hints
}

func (f *fakeDecoder) Decode(_ context.Context, img image.Image, hints decode.Hints) (*decode.Result, error) {
	f.calls = append(f.calls, hints)
	if f.pureFail && hints.Enabled(decode.HintPureBarcode) {
		return nil, decode.ErrNotFound
	}
	res, ok := f.results[tagOf(img)]
	if !ok {
		return nil, decode.ErrNotFound
	}
	return res, nil
}

func qr(text string) *decode.Result {
	return &decode.Result{Format: decode.FormatQRCode, Text: text}
}

func single(path string, v uint8, angles ...float64) Image {
	variants := make(map[float64]image.Image, len(angles))
	for _, a := range angles {
		variants[a] = tag(v)
	}
	return Image{Path: path, Variants: variants}
}

// #endregion fakes

// #region scenario-tests
func TestScore_ScenarioA_ExactMatch(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("123456789012")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	counters, err := e.Score(context.Background(),
		[]Image{single("a.png", 1, 0)},
		map[string]fixture.Expectation{"a.png": {Text: "123456789012"}},
		[]float64{0})
	require.NoError(t, err)
	assert.Equal(t, []Counters{{Passed: 1, TryHarderPassed: 1}}, counters)
}

func TestScore_ScenarioB_OffByOneDigitIsMisread(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("123456789013")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	counters, err := e.Score(context.Background(),
		[]Image{single("a.png", 1, 0)},
		map[string]fixture.Expectation{"a.png": {Text: "123456789012"}},
		[]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0, counters[0].Passed)
	assert.Equal(t, 1, counters[0].Misread)
	assert.Equal(t, 1, counters[0].TryHarderMisread)
}

func TestScore_ScenarioE_MissingMetadataIsMisread(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("abc")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	exp := fixture.Expectation{
		Text:     "abc",
		Metadata: map[decode.MetadataKind]string{decode.MetadataOrientation: "90"},
	}
	assert.Equal(t, Misread, e.Classify(context.Background(), tag(1), exp, 0, false))
}

// #endregion scenario-tests

// #region classify-tests
func TestClassify_PureAttemptFallsBackToBaseHints(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("x")}, pureFail: true}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	got := e.Classify(context.Background(), tag(1), fixture.Expectation{Text: "x"}, 90, true)
	assert.Equal(t, Matched, got)

	require.Len(t, dec.calls, 2)
	assert.True(t, dec.calls[0].Enabled(decode.HintPureBarcode))
	assert.True(t, dec.calls[0].Enabled(decode.HintTryHarder))
	assert.False(t, dec.calls[1].Enabled(decode.HintPureBarcode))
	assert.True(t, dec.calls[1].Enabled(decode.HintTryHarder))
}

func TestClassify_PureResultIsUsed(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("x")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	assert.Equal(t, Matched, e.Classify(context.Background(), tag(1), fixture.Expectation{Text: "x"}, 0, false))
	require.Len(t, dec.calls, 1)
	assert.False(t, dec.calls[0].Enabled(decode.HintTryHarder))
}

func TestClassify_FailureIsNotDetected(t *testing.T) {
	dec := decode.DecoderFunc(func(context.Context, image.Image, decode.Hints) (*decode.Result, error) {
		return nil, errors.New("reader exploded")
	})
	e := NewEngine(dec, decode.FormatQRCode, nil)

	assert.Equal(t, NotDetected, e.Classify(context.Background(), tag(1), fixture.Expectation{Text: "x"}, 0, false))
}

func TestClassify_NilResultIsNotDetected(t *testing.T) {
	dec := decode.DecoderFunc(func(context.Context, image.Image, decode.Hints) (*decode.Result, error) {
		return nil, nil
	})
	e := NewEngine(dec, decode.FormatQRCode, nil)

	assert.Equal(t, NotDetected, e.Classify(context.Background(), tag(1), fixture.Expectation{Text: "x"}, 0, false))
}

func TestCompare_FormatMismatch(t *testing.T) {
	res := &decode.Result{Format: decode.FormatDataMatrix, Text: "x"}
	o, detail := Compare(res, decode.FormatQRCode, fixture.Expectation{Text: "x"})
	assert.Equal(t, Misread, o)
	assert.Contains(t, detail, "format mismatch")
}

func TestCompare_MetadataValueMismatch(t *testing.T) {
	res := &decode.Result{
		Format: decode.FormatQRCode,
		Text:   "x",
		Metadata: map[decode.MetadataKind]string{
			decode.MetadataOrientation:          "180",
			decode.MetadataErrorCorrectionLevel: "H",
		},
	}
	exp := fixture.Expectation{Text: "x", Metadata: map[decode.MetadataKind]string{
		decode.MetadataOrientation:          "90",
		decode.MetadataErrorCorrectionLevel: "L",
	}}
	o, detail := Compare(res, decode.FormatQRCode, exp)
	assert.Equal(t, Misread, o)
	// ORIENTATION precedes ERROR_CORRECTION_LEVEL in the fixed kind order.
	assert.Contains(t, detail, "'ORIENTATION'")
}

func TestCompare_ExtraDecodedMetadataIgnored(t *testing.T) {
	res := &decode.Result{
		Format:   decode.FormatQRCode,
		Text:     "x",
		Metadata: map[decode.MetadataKind]string{decode.MetadataOrientation: "0"},
	}
	o, _ := Compare(res, decode.FormatQRCode, fixture.Expectation{Text: "x", Metadata: map[decode.MetadataKind]string{}})
	assert.Equal(t, Matched, o)
}

func TestCompare_LineEndingsEquivalent(t *testing.T) {
	res := &decode.Result{Format: decode.FormatQRCode, Text: "a\r\nb"}
	o, _ := Compare(res, decode.FormatQRCode, fixture.Expectation{Text: "a\nb"})
	assert.Equal(t, Matched, o)

	res.Text = "a\nb"
	o, _ = Compare(res, decode.FormatQRCode, fixture.Expectation{Text: "a\r\nb"})
	assert.Equal(t, Matched, o)
}

func TestCompare_NormalizationLaw(t *testing.T) {
	samples := []string{"", "a", "a\nb", "a\r\nb", "a\rb", "\r\r\n", "x\r", "\r\n\r\n", "é\r\n"}
	for _, text := range samples {
		for _, want := range samples {
			res := &decode.Result{Format: decode.FormatQRCode, Text: text}
			direct, _ := Compare(res, decode.FormatQRCode, fixture.Expectation{Text: want})

			normRes := &decode.Result{Format: decode.FormatQRCode, Text: NormalizeLineEndings(text)}
			normalized, _ := Compare(normRes, decode.FormatQRCode, fixture.Expectation{Text: NormalizeLineEndings(want)})

			if direct != normalized {
				t.Errorf("text=%q want=%q: direct=%s normalized=%s", text, want, direct, normalized)
			}
		}
	}
}

func TestNormalizeLineEndings(t *testing.T) {
	cases := map[string]string{
		"":          "",
		"a\r\nb":    "a\nb",
		"a\rb":      "a\rb",
		"\r\r\n":    "\n",
		"trail\r":   "trail\r",
		"x\r\n\r\n": "x\n\n",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLineEndings(in), "%q", in)
	}
}

func TestHexCodes(t *testing.T) {
	assert.Equal(t, "0x41, 0xA, 0xE9", HexCodes("A\né"))
	assert.Equal(t, "", HexCodes(""))
	assert.Equal(t, "0x41, 0xD83D, 0xDE00", HexCodes("A\U0001F600"))
}

// #endregion classify-tests

// #region pass-tests
func TestScore_CounterBoundsAndNotDetected(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{
		1: qr("one"),
		2: qr("wrong"),
		// 3 is never found
	}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	angles := []float64{0, 90}
	images := []Image{single("1.png", 1, angles...), single("2.png", 2, angles...), single("3.png", 3, angles...)}
	exps := map[string]fixture.Expectation{
		"1.png": {Text: "one"},
		"2.png": {Text: "two"},
		"3.png": {Text: "three"},
	}

	counters, err := e.Score(context.Background(), images, exps, angles)
	require.NoError(t, err)
	require.Len(t, counters, 2)
	for _, c := range counters {
		assert.LessOrEqual(t, c.Passed+c.Misread, len(images))
		assert.LessOrEqual(t, c.TryHarderPassed+c.TryHarderMisread, len(images))
		assert.Equal(t, Counters{Passed: 1, Misread: 1, TryHarderPassed: 1, TryHarderMisread: 1}, c)
		assert.Equal(t, 1, c.NotDetected(len(images)))
		assert.Equal(t, 1, c.TryHarderNotDetected(len(images)))
	}
}

func TestScore_Idempotent(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("one"), 2: qr("nope")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	angles := []float64{0, 180}
	images := []Image{single("1.png", 1, angles...), single("2.png", 2, angles...)}
	exps := map[string]fixture.Expectation{"1.png": {Text: "one"}, "2.png": {Text: "two"}}

	first, err := e.Score(context.Background(), images, exps, angles)
	require.NoError(t, err)
	second, err := e.Score(context.Background(), images, exps, angles)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("counters differ between identical runs (-first +second):\n%s", diff)
	}
}

func TestScore_MissingExpectationAborts(t *testing.T) {
	e := NewEngine(&fakeDecoder{}, decode.FormatQRCode, nil)
	_, err := e.Score(context.Background(), []Image{single("a.png", 1, 0)}, nil, []float64{0})
	assert.ErrorIs(t, err, fixture.ErrMissingExpectationFile)
}

func TestScoreImage_MissingVariant(t *testing.T) {
	e := NewEngine(&fakeDecoder{}, decode.FormatQRCode, nil)
	counters := make([]Counters, 1)
	err := e.ScoreImage(context.Background(), single("a.png", 1, 0), fixture.Expectation{}, []float64{90}, counters)
	assert.Error(t, err)
}

func TestScoreImage_CounterLengthMismatch(t *testing.T) {
	e := NewEngine(&fakeDecoder{}, decode.FormatQRCode, nil)
	err := e.ScoreImage(context.Background(), single("a.png", 1, 0), fixture.Expectation{}, []float64{0}, nil)
	assert.Error(t, err)
}

func TestScoreImage_ObserversSeeEveryAttempt(t *testing.T) {
	dec := &fakeDecoder{results: map[uint8]*decode.Result{1: qr("x")}}
	e := NewEngine(dec, decode.FormatQRCode, nil)

	var seen []Attempt
	e.OnAttempt(func(a Attempt) { seen = append(seen, a) })

	angles := []float64{0, 270}
	counters := make([]Counters, len(angles))
	require.NoError(t, e.ScoreImage(context.Background(), single("a.png", 1, angles...), fixture.Expectation{Text: "x"}, angles, counters))

	require.Len(t, seen, 4)
	assert.Equal(t, Attempt{Image: "a.png", Rotation: 0, TryHarder: false, Outcome: Matched, Detail: "matched"}, seen[0])
	assert.True(t, seen[1].TryHarder)
	assert.Equal(t, 270.0, seen[3].Rotation)
}

func TestCounters_AddNotDetectedIsNoop(t *testing.T) {
	var c Counters
	c.Add(NotDetected, false)
	c.Add(NotDetected, true)
	assert.Equal(t, Counters{}, c)
}

// #endregion pass-tests
