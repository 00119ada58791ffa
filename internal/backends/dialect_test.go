package backends

import (
	"runtime"
	"slices"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/desertthunder/gamekeep/internal/models"
)

func TestInstallArgs(t *testing.T) {
	req := func(b models.Backend, opts ...models.RequestOption) models.OperationRequest {
		return models.NewOperationRequest(models.NewGameIdentity("demo", b), models.OpInstall, "/games", opts...)
	}

	tests := []struct {
		name string
		d    dialect
		req  models.OperationRequest
		want []string
	}{
		{
			name: "gog without dlcs",
			d:    gogCLI{},
			req:  req(models.GOG),
			want: []string{"download", "demo", "--platform", "windows", "--path", "/games", "--skip-dlcs"},
		},
		{
			name: "gog with selection",
			d:    gogCLI{},
			req:  req(models.GOG, models.WithLanguage("en-US"), models.WithBranch("beta"), models.WithDLCs("a", "b")),
			want: []string{"download", "demo", "--platform", "windows", "--path", "/games", "--lang", "en-US", "--branch", "beta", "--with-dlcs", "--dlcs", "a,b"},
		},
		{
			name: "legendary pinned version",
			d:    legendaryCLI{},
			req:  req(models.Legendary, models.WithBuild("1.0.3")),
			want: []string{"install", "demo", "--base-path", "/games", "--platform", "windows", "-y", "--skip-dlcs", "--version", "1.0.3"},
		},
		{
			name: "nile",
			d:    nileCLI{},
			req:  req(models.Nile),
			want: []string{"install", "demo", "--base-path", "/games"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.installArgs(tt.req, "windows"); !slices.Equal(got, tt.want) {
				t.Errorf("installArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseInfo(t *testing.T) {
	t.Run("gog keeps the largest language size", func(t *testing.T) {
		doc := gjson.Parse(`{
			"title": "Demo", "versionName": "1.4", "buildId": "99", "folder_name": "Demo",
			"size": {"en": {"disk_size": 100, "download_size": 60}, "de": {"disk_size": 120, "download_size": 70}},
			"dlcs": [{"id": "d1"}, {"id": "d2"}],
			"platforms": ["windows", "linux"]
		}`)
		meta := gogCLI{}.parseInfo("demo", doc)

		if meta.Info.InstallSize != 120 || meta.Info.DownloadSize != 70 {
			t.Errorf("sizes = %d/%d", meta.Info.InstallSize, meta.Info.DownloadSize)
		}
		if !slices.Equal(meta.Info.DLCs, []string{"d1", "d2"}) || len(meta.Info.Platforms) != 2 {
			t.Errorf("unexpected info %+v", meta.Info)
		}
		if meta.folderOr("x") != "Demo" {
			t.Errorf("folder = %q", meta.Folder)
		}
	})

	t.Run("legendary", func(t *testing.T) {
		doc := gjson.Parse(`{
			"game": {"title": "Demo", "version": "2.0", "folder_name": "DemoGame",
				"owned_dlc": [{"app_name": "extra"}], "platform_versions": {"Windows": "2.0", "Mac": "1.9"}},
			"manifest": {"build_version": "2.0-CL1", "disk_size": 5000, "download_size": 3000, "launch_exe": "Demo.exe"}
		}`)
		meta := legendaryCLI{}.parseInfo("demo", doc)

		if meta.Info.LatestBuildID != "2.0-CL1" || meta.Executable != "Demo.exe" || meta.Folder != "DemoGame" {
			t.Errorf("unexpected metadata %+v", meta)
		}
		if !slices.Equal(meta.Info.DLCs, []string{"extra"}) || len(meta.Info.Platforms) != 2 {
			t.Errorf("unexpected info %+v", meta.Info)
		}
	})

	t.Run("nile", func(t *testing.T) {
		doc := gjson.Parse(`{"product": {"title": "Demo"}, "version": "7", "versionId": "abc", "size": {"disk": 10, "download": 5}}`)
		meta := nileCLI{}.parseInfo("demo", doc)

		if meta.Info.Title != "Demo" || meta.Info.LatestBuildID != "abc" || meta.Info.InstallSize != 10 {
			t.Errorf("unexpected info %+v", meta.Info)
		}
		if meta.folderOr("demo") != "demo" {
			t.Error("missing folder should fall back")
		}
	})
}

func TestJSONPayload(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		wantErr bool
	}{
		{"plain", `{"a":1}`, false},
		{"surrounded by logs", "[cli] INFO: loading\n{\"a\":1}\n[cli] INFO: done", false},
		{"array", `[1,2]`, false},
		{"no json", "nothing here", true},
		{"malformed", `{"a":}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jsonPayload(tt.out)
			if (err != nil) != tt.wantErr {
				t.Errorf("jsonPayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsNativePlatform(t *testing.T) {
	if isNativePlatform("plan9") {
		t.Error("unknown platforms are never native")
	}
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		if !isNativePlatform(hostPlatform()) {
			t.Errorf("%s should be native", hostPlatform())
		}
	}
}

func TestScriptIn(t *testing.T) {
	dir := t.TempDir()
	if _, ok := scriptIn(dir, "uninstall.sh"); ok {
		t.Error("missing script should not be found")
	}
	if _, ok := scriptIn("", "uninstall.sh"); ok {
		t.Error("empty dir should not be searched")
	}
}
