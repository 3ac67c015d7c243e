// Command celerique-triangle opens an SDL2 window and renders a mesh
// through the GPU resource manager. With no mesh argument it draws a
// built-in colored triangle; -mesh renders a Wavefront OBJ file with
// flat white vertex colors.
//
// Shaders are compiled SPIR-V blobs. The expected interface is a
// vertex stage consuming position (location 0, vec3) and color
// (location 1, vec3) from binding 0, and a fragment stage writing one
// color attachment.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"log/slog"
	"os"
	"runtime"

	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/aldhinn/celerique/driver"
	"github.com/aldhinn/celerique/driver/vkdriver"
	"github.com/aldhinn/celerique/gpu"
	"github.com/aldhinn/celerique/shader"
)

type vertex struct {
	Pos   mgl32.Vec3
	Color mgl32.Vec3
}

const vertexStride = 24

func main() {
	vertPath := flag.String("vert", "shaders/triangle.vert.spv", "compiled vertex shader")
	fragPath := flag.String("frag", "shaders/triangle.frag.spv", "compiled fragment shader")
	meshPath := flag.String("mesh", "", "Wavefront OBJ file to render instead of the built-in triangle")
	cachePath := flag.String("pipeline-cache", "", "file to persist the pipeline cache in")
	validate := flag.Bool("validate", false, "enable the Vulkan validation layer")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, *vertPath, *fragPath, *meshPath, *cachePath, *validate); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, vertPath, fragPath, meshPath, cachePath string, validate bool) error {
	// SDL event handling must stay on the main thread.
	runtime.LockOSThread()

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}
	defer sdl.Quit()

	window, err := sdl.CreateWindow("celerique", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		800, 600, sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return err
	}
	defer window.Destroy()

	api, err := vkdriver.New(window, vkdriver.Options{
		AppName:           "celerique-triangle",
		Validation:        validate,
		PipelineCachePath: cachePath,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer api.Close()

	manager, err := gpu.New(gpu.Config{
		API:        api,
		Logger:     logger,
		ClearColor: [4]float32{0.02, 0.02, 0.05, 1},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	windowID, err := window.GetID()
	if err != nil {
		return err
	}
	handle := driver.WindowHandle(windowID)
	if err := manager.RegisterSurface(handle, windowProtocol()); err != nil {
		return err
	}

	vertCode, err := shader.Load(vertPath)
	if err != nil {
		return err
	}
	fragCode, err := shader.Load(fragPath)
	if err != nil {
		return err
	}

	pipeline, err := manager.AddPipeline(gpu.PipelineConfig{
		Stages: map[driver.ShaderStage][]byte{
			driver.StageVertex:   vertCode,
			driver.StageFragment: fragCode,
		},
		Inputs: []gpu.InputLayout{
			{Binding: 0, Location: 0, Offset: 0, ElementCount: 3, Type: gpu.TypeFloat32},
			{Binding: 0, Location: 1, Offset: 12, ElementCount: 3, Type: gpu.TypeFloat32},
		},
	})
	if err != nil {
		return err
	}

	mesh, err := loadMesh(meshPath)
	if err != nil {
		return err
	}

	rendering := true
appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						if err := manager.RecreateSwapchain(handle); err != nil {
							return err
						}
					} else {
						rendering = false
					}
				}
			}
		}
		if rendering {
			if err := manager.Draw(pipeline, mesh); err != nil {
				return err
			}
		}
	}

	stats := manager.Stats()
	logger.Info("session finished",
		"frames", stats.Frames,
		"dropped", stats.Dropped,
		"cpu_time", stats.Total,
	)
	return nil
}

// windowProtocol reports the UI protocol SDL is running on.
func windowProtocol() driver.Protocol {
	switch runtime.GOOS {
	case "windows":
		return driver.ProtocolWin32
	case "darwin":
		return driver.ProtocolAppKit
	}
	if sdl.GetCurrentVideoDriver() == "wayland" {
		return driver.ProtocolWayland
	}
	return driver.ProtocolX11
}

func loadMesh(path string) (*gpu.Mesh, error) {
	if path == "" {
		return builtinTriangle()
	}
	decoder, err := obj.Decode(path, "")
	if err != nil {
		return nil, err
	}

	var verts []vertex
	var indices []uint32
	uniqueVertices := make(map[int]uint32)

	addVertex := func(face obj.Face, faceIndex int) {
		vertInd := face.Vertices[faceIndex]
		index, exists := uniqueVertices[vertInd]
		if !exists {
			index = uint32(len(verts))
			verts = append(verts, vertex{
				Pos: mgl32.Vec3{
					decoder.Vertices[vertInd*3],
					decoder.Vertices[vertInd*3+1],
					decoder.Vertices[vertInd*3+2],
				},
				Color: mgl32.Vec3{1, 1, 1},
			})
			uniqueVertices[vertInd] = index
		}
		indices = append(indices, index)
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			// Fan-triangulate faces with more than three corners.
			for i := 2; i < len(face.Vertices); i++ {
				addVertex(face, 0)
				addVertex(face, i-1)
				addVertex(face, i)
			}
		}
	}

	return packMesh(verts, indices)
}

func builtinTriangle() (*gpu.Mesh, error) {
	return packMesh([]vertex{
		{Pos: mgl32.Vec3{0, -0.5, 0}, Color: mgl32.Vec3{1, 0, 0}},
		{Pos: mgl32.Vec3{0.5, 0.5, 0}, Color: mgl32.Vec3{0, 1, 0}},
		{Pos: mgl32.Vec3{-0.5, 0.5, 0}, Color: mgl32.Vec3{0, 0, 1}},
	}, nil)
}

func packMesh(verts []vertex, indices []uint32) (*gpu.Mesh, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, verts); err != nil {
		return nil, err
	}
	return &gpu.Mesh{
		VertexCount: len(verts),
		Stride:      vertexStride,
		Vertices:    buf.Bytes(),
		Indices:     indices,
	}, nil
}
