package scene

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

const builtinGroup = "Built-in Scenes"

// SceneInfo represents a discovered scene with its metadata
type SceneInfo struct {
	ID          string `json:"id"`          // Unique identifier
	Name        string `json:"name"`        // Scene name
	DisplayName string `json:"displayName"` // UI display name
	Description string `json:"description"` // Optional description
	Group       string `json:"group"`       // Grouping category
	Type        string `json:"type"`        // "builtin" or "file"
	FilePath    string `json:"filePath"`    // Path to the scene file (file type only)
	Variant     string `json:"variant"`     // Variant name (optional)
}

// SceneGroup represents a group of related scenes
type SceneGroup struct {
	Name   string      `json:"name"`
	Scenes []SceneInfo `json:"scenes"`
}

// ScenesResponse represents the complete response for /api/scenes
type ScenesResponse struct {
	Groups []SceneGroup `json:"groups"`
}

var builtinScenes = []SceneInfo{
	{
		ID:          "landmark",
		Name:        "Landmark",
		DisplayName: "Landmark",
		Description: "Pillar and figure on a ground slab with an outfit-dependent torso and a transient passerby",
		Group:       builtinGroup,
		Type:        "builtin",
	},
	{
		ID:          "fog",
		Name:        "Fog Sphere",
		DisplayName: "Fog Sphere",
		Description: "Single translucent sphere",
		Group:       builtinGroup,
		Type:        "builtin",
	},
	{
		ID:          "blob-grid",
		Name:        "Blob Grid",
		DisplayName: "Blob Grid",
		Description: "5x5 grid of colored spheres",
		Group:       builtinGroup,
		Type:        "builtin",
	},
}

// sceneFile is the YAML layout of a scene file
type sceneFile struct {
	Name        string     `yaml:"name"`
	Variant     string     `yaml:"variant"`
	Description string     `yaml:"description"`
	Group       string     `yaml:"group"`
	Camera      cameraFile `yaml:"camera"`
	Static      []Blob     `yaml:"static"`
	Transient   []Blob     `yaml:"transient"`
}

type cameraFile struct {
	Center mgl64.Vec3 `yaml:"center"`
	LookAt mgl64.Vec3 `yaml:"look_at"`
	Up     mgl64.Vec3 `yaml:"up"`
	Width  int        `yaml:"width"`
	Height int        `yaml:"height"`
	VFov   float64    `yaml:"vfov"`
	Near   float64    `yaml:"near"`
	Far    float64    `yaml:"far"`
}

var defaultFileCamera = core.CameraConfig{
	Center: mgl64.Vec3{0, 0, 4},
	Up:     mgl64.Vec3{0, 1, 0},
	Width:  128,
	Height: 128,
	VFov:   40,
	Near:   2,
	Far:    6,
}

// LoadSceneFile reads a YAML scene description
func LoadSceneFile(filePath string) (*Scene, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scene file")
	}
	var file sceneFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse scene file %s", filePath)
	}

	s := &Scene{
		Info:         fileInfo(filePath, file),
		CameraConfig: MergeCameraConfig(defaultFileCamera, core.CameraConfig(file.Camera)),
		Static:       file.Static,
		Transient:    file.Transient,
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrapf(err, "scene file %s", filePath)
	}
	return s, nil
}

func fileInfo(filePath string, file sceneFile) SceneInfo {
	// Extract filename without extension for fallback values
	nameWithoutExt := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))

	info := SceneInfo{
		ID:          "file:" + nameWithoutExt,
		Name:        titleCase(nameWithoutExt),
		Description: file.Description,
		Group:       "Scene Files",
		Type:        "file",
		FilePath:    filePath,
		Variant:     file.Variant,
	}
	if file.Name != "" {
		info.Name = file.Name
	}
	if file.Group != "" {
		info.Group = file.Group
	}
	info.DisplayName = info.Name
	if info.Variant != "" {
		info.DisplayName = info.Name + " - " + info.Variant
	}
	return info
}

// ListSceneFiles scans dir for *.yaml scene files. A missing directory yields no scenes.
func ListSceneFiles(dir string, logger core.Logger) ([]SceneInfo, error) {
	if _, err := os.Stat(dir); err != nil {
		return []SceneInfo{}, nil
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan scenes directory")
	}

	var scenes []SceneInfo
	for _, filePath := range files {
		s, err := LoadSceneFile(filePath)
		if err != nil {
			// skip broken files, keep listing the rest
			logger.Warnf("failed to load scene %s: %v", filePath, err)
			continue
		}
		scenes = append(scenes, s.Info)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].DisplayName < scenes[j].DisplayName
	})
	return scenes, nil
}

// ListAllScenes returns both built-in and file scenes, grouped by category
func ListAllScenes(dir string, logger core.Logger) (ScenesResponse, error) {
	var response ScenesResponse

	fileScenes, err := ListSceneFiles(dir, logger)
	if err != nil {
		return response, errors.Wrap(err, "failed to list scene files")
	}
	allScenes := append(append([]SceneInfo{}, builtinScenes...), fileScenes...)

	groupMap := make(map[string][]SceneInfo)
	for _, s := range allScenes {
		groupMap[s.Group] = append(groupMap[s.Group], s)
	}

	// Built-in first, then alphabetical
	var groupNames []string
	for groupName := range groupMap {
		if groupName != builtinGroup {
			groupNames = append(groupNames, groupName)
		}
	}
	sort.Strings(groupNames)
	groupNames = append([]string{builtinGroup}, groupNames...)

	for _, groupName := range groupNames {
		response.Groups = append(response.Groups, SceneGroup{
			Name:   groupName,
			Scenes: groupMap[groupName],
		})
	}
	return response, nil
}

// titleCase converts a filename-style string to title case
// e.g., "old-town" -> "Old Town"
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}
