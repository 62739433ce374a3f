package pipeline

import (
	"image"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modelPath = "/home/dlstreamer/models/yolov8n_int8_ppp.xml"
	modelProc = "/home/dlstreamer/dlstreamer_gst/samples/gstreamer/model_proc/public/yolo-v8.json"
)

func TestLayout(t *testing.T) {
	want := map[int]string{
		1: "sink_1::alpha=1",
		2: "sink_1::xpos=0 sink_2::xpos=640",
		3: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360",
		4: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360",
		5: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360 sink_5::xpos=1280",
		6: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360 sink_5::xpos=1280 " +
			"sink_6::xpos=1280 sink_6::ypos=360",
		7: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360 sink_5::xpos=1280 " +
			"sink_6::xpos=1280 sink_6::ypos=360 sink_7::ypos=720",
		8: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360 sink_5::xpos=1280 " +
			"sink_6::xpos=1280 sink_6::ypos=360 sink_7::ypos=720 sink_8::xpos=640 sink_8::ypos=720",
		9: "sink_1::xpos=0 sink_2::xpos=640 sink_3::ypos=360 sink_4::xpos=640 sink_4::ypos=360 sink_5::xpos=1280 " +
			"sink_6::xpos=1280 sink_6::ypos=360 sink_7::ypos=720 sink_8::xpos=640 sink_8::ypos=720 " +
			"sink_9::xpos=1280 sink_9::ypos=720",
	}

	for n, s := range want {
		got, err := Layout(n)
		require.NoError(t, err)
		assert.Equal(t, s, got, "cameras=%d", n)
	}
}

func TestLayout_OutOfRange(t *testing.T) {
	_, err := Layout(10)
	assert.True(t, errors.Is(err, ErrTooManyCameras))

	_, err = Layout(0)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrTooManyCameras))
}

func TestTilesAndCanvas(t *testing.T) {
	tiles, err := Tiles(5)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(1280, 0), tiles[4])

	canvas, err := Canvas(1)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 360), canvas)

	canvas, err = Canvas(5)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1920, 720), canvas)

	canvas, err = Canvas(9)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), canvas)
}

func TestSource(t *testing.T) {
	assert.Equal(t, `v4l2src device="/dev/video0"`, Source("/dev/video0"))
	assert.Equal(t, `urisourcebin buffer-size=4096 uri="rtsp://cam/stream"`, Source("rtsp://cam/stream"))
	assert.Equal(t, `filesrc location="/videos/people.mp4"`, Source("/videos/people.mp4"))
}

func TestParseDevice(t *testing.T) {
	assert.Equal(t, DeviceGPU, ParseDevice("GPU"))
	assert.Equal(t, DeviceCPU, ParseDevice("CPU"))
	assert.Equal(t, DeviceCPU, ParseDevice("NPU"))
	assert.Equal(t, DeviceCPU, ParseDevice(""))
}

func TestBuild_CPU(t *testing.T) {
	desc, err := Build(Options{
		Sources:   []string{"/dev/video0"},
		Device:    DeviceCPU,
		ModelPath: modelPath,
		ModelProc: modelProc,
	})
	require.NoError(t, err)

	want := `compositor name=mix background=1 sink_1::alpha=1 ! gvafpscounter ! fakesink async=false ` +
		`v4l2src device="/dev/video0" ! decodebin ! gvadetect model="` + modelPath + `" model-proc="` + modelProc +
		`" device=CPU ! gvawatermark ! video/x-raw,width=640,height=360 ! mix.sink_1 `
	assert.Equal(t, want, desc)
}

func TestBuild_GPUDisplay(t *testing.T) {
	desc, err := Build(Options{
		Sources:   []string{"/videos/a.mp4", "rtsp://cam/b"},
		Device:    DeviceGPU,
		Display:   true,
		ModelPath: modelPath,
		ModelProc: modelProc,
	})
	require.NoError(t, err)

	stream := func(src string, sink int) string {
		return src + ` !  decodebin ! video/x-raw(memory:VASurface)  ! gvadetect model="` + modelPath +
			`" model-proc="` + modelProc + `" pre-process-backend=vaapi-surface-sharing device=GPU` +
			` batch-size=2 nireq=2 model-instance-id=1 ! meta_overlay device=GPU preprocess-queue-size=25` +
			` process-queue-size=25 postprocess-queue-size=25  ! video/x-raw,width=640,height=360 ! mix.sink_` +
			string(rune('0'+sink)) + " "
	}
	want := "compositor name=mix background=1 sink_1::xpos=0 sink_2::xpos=640 ! " +
		"videoconvert ! fpsdisplaysink video-sink=xvimagesink sync=false " +
		stream(`filesrc location="/videos/a.mp4"`, 1) +
		stream(`urisourcebin buffer-size=4096 uri="rtsp://cam/b"`, 2)
	assert.Equal(t, want, desc)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(Options{ModelPath: modelPath})
	assert.Error(t, err)

	sources := make([]string, 10)
	_, err = Build(Options{Sources: sources, ModelPath: modelPath})
	assert.True(t, errors.Is(err, ErrTooManyCameras))

	_, err = Build(Options{Sources: []string{"/dev/video0"}})
	assert.Error(t, err)
}
