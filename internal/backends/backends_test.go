package backends

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/gamekeep/internal/kv"
	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/registry"
	"github.com/desertthunder/gamekeep/internal/shared"
	tu "github.com/desertthunder/gamekeep/internal/testing"
)

func newDeps(launcher *tu.FakeLauncher) Deps {
	return Deps{
		Launcher: launcher,
		Registry: registry.New(kv.Memory().Namespace(registry.Namespace)),
		Logger:   shared.NopLogger(),
	}
}

func collector() (models.ProgressFunc, *[]models.ProgressSnapshot) {
	var got []models.ProgressSnapshot
	return func(s models.ProgressSnapshot) { got = append(got, s) }, &got
}

func TestInstall(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.GOG)

	t.Run("streams progress and records the install", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("download", tu.Script{Lines: []string{"Progress: 50.0 ", "Progress: 100.0 "}})
		deps := newDeps(launcher)
		gog := NewGOG("", deps)

		onProgress, got := collector()
		out := gog.Install(context.Background(), models.NewOperationRequest(demo, models.OpInstall, "/games"), onProgress)

		if out.Status != models.OutcomeDone {
			t.Fatalf("expected done, got %+v", out)
		}
		if len(*got) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(*got))
		}
		if *(*got)[0].Percent != 50 || *(*got)[1].Percent != 100 {
			t.Errorf("unexpected percents %v, %v", *(*got)[0].Percent, *(*got)[1].Percent)
		}

		info, ok := deps.Registry.Get(demo)
		if !ok {
			t.Fatal("expected an installed record")
		}
		if !strings.HasPrefix(info.InstallPath, "/games") {
			t.Errorf("install path %q should be under /games", info.InstallPath)
		}
		if info.Platform != "windows" {
			t.Errorf("expected default platform, got %q", info.Platform)
		}
	})

	t.Run("cancel after the first snapshot aborts without a record", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("download", tu.Script{Lines: []string{"Progress: 50.0 ", "Progress: 100.0 "}, Block: true})
		deps := newDeps(launcher)
		gog := NewGOG("", deps)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var got []models.ProgressSnapshot
		out := gog.Install(ctx, models.NewOperationRequest(demo, models.OpInstall, "/games"), func(s models.ProgressSnapshot) {
			got = append(got, s)
			cancel()
		})

		if out.Status != models.OutcomeAbort {
			t.Fatalf("expected abort, got %+v", out)
		}
		if len(got) != 1 {
			t.Errorf("expected 1 snapshot before the cancel, got %d", len(got))
		}
		if _, ok := deps.Registry.Get(demo); ok {
			t.Error("aborted install must not leave a record")
		}
		if len(launcher.CallsTo("info")) != 0 {
			t.Error("metadata should not be fetched after an abort")
		}
	})

	t.Run("process failure leaves the registry untouched", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("download", tu.Script{Lines: []string{"ERROR: manifest not found"}, ExitCode: 1})
		deps := newDeps(launcher)
		gog := NewGOG("", deps)

		out := gog.Install(context.Background(), models.NewOperationRequest(demo, models.OpInstall, "/games"), nil)

		if out.Status != models.OutcomeError {
			t.Fatalf("expected error, got %+v", out)
		}
		if !strings.Contains(out.Message, shared.ErrProcessFailed.Error()) {
			t.Errorf("message %q should carry the process failure", out.Message)
		}
		if deps.Registry.IsInstalled(demo) {
			t.Error("failed install must not leave a record")
		}
	})

	t.Run("fails fast when not logged in", func(t *testing.T) {
		launcher := tu.NewFakeLauncher()
		deps := newDeps(launcher)
		deps.Credentials = tu.StaticCredentials{}
		gog := NewGOG("", deps)

		out := gog.Install(context.Background(), models.NewOperationRequest(demo, models.OpInstall, "/games"), nil)

		if out.Status != models.OutcomeError || !strings.Contains(out.Message, shared.ErrNotAuthenticated.Error()) {
			t.Errorf("expected unauthenticated error, got %+v", out)
		}
		if len(launcher.Calls()) != 0 {
			t.Error("no process should start without credentials")
		}
	})

	t.Run("fails fast when offline", func(t *testing.T) {
		launcher := tu.NewFakeLauncher()
		deps := newDeps(launcher)
		deps.Gate = tu.NewStaticGate(false)
		gog := NewGOG("", deps)

		out := gog.Install(context.Background(), models.NewOperationRequest(demo, models.OpInstall, "/games"), nil)

		if out.Status != models.OutcomeError || !strings.Contains(out.Message, shared.ErrUnreachable.Error()) {
			t.Errorf("expected unreachable error, got %+v", out)
		}
		if len(launcher.Calls()) != 0 {
			t.Error("no process should start while offline")
		}
	})

	t.Run("passes the access token to the downloader", func(t *testing.T) {
		launcher := tu.NewFakeLauncher()
		deps := newDeps(launcher)
		deps.Credentials = tu.StaticCredentials{models.GOG: "secret"}
		gog := NewGOG("", deps)

		gog.Install(context.Background(), models.NewOperationRequest(demo, models.OpInstall, "/games"), nil)

		calls := launcher.CallsTo("download")
		if len(calls) != 1 || !slices.Contains(calls[0].Env, "GAMEKEEP_ACCESS_TOKEN=secret") {
			t.Errorf("unexpected calls %+v", calls)
		}
	})

	t.Run("uses metadata from the info command", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("info", tu.Script{
			Stdout: `[INFO] fetching
{"title":"Demo","versionName":"1.2","buildId":"555","folder_name":"Demo Game","size":{"en":{"disk_size":100,"download_size":50}}}`,
		})
		deps := newDeps(launcher)
		gog := NewGOG("", deps)

		req := models.NewOperationRequest(demo, models.OpInstall, "/games", models.WithPlatform("linux"))
		if out := gog.Install(context.Background(), req, nil); !out.OK() {
			t.Fatalf("install failed: %+v", out)
		}

		info, _ := deps.Registry.Get(demo)
		if info.InstallPath != filepath.Join("/games", "Demo Game") {
			t.Errorf("install path = %q", info.InstallPath)
		}
		if info.Version != "1.2" || info.BuildID != "555" || info.InstallSize != 100 {
			t.Errorf("unexpected record %+v", info)
		}
		if info.Platform != "linux" {
			t.Errorf("platform = %q", info.Platform)
		}
	})

	t.Run("a pinned build is recorded", func(t *testing.T) {
		deps := newDeps(tu.NewFakeLauncher())
		gog := NewGOG("", deps)

		req := models.NewOperationRequest(demo, models.OpInstall, "/games", models.WithBuild("42"))
		gog.Install(context.Background(), req, nil)

		info, _ := deps.Registry.Get(demo)
		if !info.PinnedVersion || info.BuildID != "42" {
			t.Errorf("unexpected record %+v", info)
		}
	})

	t.Run("rejects a request for another backend", func(t *testing.T) {
		gog := NewGOG("", newDeps(tu.NewFakeLauncher()))
		epic := models.NewGameIdentity("demo", models.Legendary)

		out := gog.Install(context.Background(), models.NewOperationRequest(epic, models.OpInstall, "/games"), nil)
		if out.Status != models.OutcomeError {
			t.Errorf("expected error, got %+v", out)
		}
	})
}

func TestUpdate(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.GOG)
	installed := models.InstalledInfo{
		Platform:      "windows",
		InstallPath:   "/games/demo",
		Version:       "1.0",
		BuildID:       "1",
		InstalledDLCs: []string{"dlc-a", "dlc-b"},
	}

	t.Run("not installed is an error", func(t *testing.T) {
		gog := NewGOG("", newDeps(tu.NewFakeLauncher()))

		out := gog.Update(context.Background(), models.NewOperationRequest(demo, models.OpUpdate, ""), nil)
		if out.Status != models.OutcomeError || !strings.Contains(out.Message, shared.ErrNotInstalled.Error()) {
			t.Errorf("expected not installed, got %+v", out)
		}
	})

	t.Run("dlc removal failures do not abort the update", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().
			On("remove-dlc", tu.Script{ExitCode: 1}).
			On("info", tu.Script{Stdout: `{"versionName":"2.0","buildId":"2"}`})
		deps := newDeps(launcher)
		deps.Registry.Put(demo, installed)
		gog := NewGOG("", deps)

		req := models.NewOperationRequest(demo, models.OpUpdate, "", models.WithDLCs("dlc-a"))
		out := gog.Update(context.Background(), req, nil)

		if !out.OK() {
			t.Fatalf("expected done, got %+v", out)
		}

		calls := launcher.Calls()
		if len(calls) < 2 || calls[0].Sub() != "remove-dlc" || calls[1].Sub() != "update" {
			t.Fatalf("dlc removal should run before the update, got %+v", calls)
		}
		if !slices.Contains(calls[0].Args, "dlc-b") {
			t.Errorf("expected dlc-b to be removed, got %v", calls[0].Args)
		}

		info, _ := deps.Registry.Get(demo)
		if !slices.Equal(info.InstalledDLCs, []string{"dlc-a"}) {
			t.Errorf("installed dlcs = %v", info.InstalledDLCs)
		}
		if info.Version != "2.0" || info.BuildID != "2" {
			t.Errorf("unexpected record %+v", info)
		}
	})

	t.Run("nil dlc selection keeps what is installed", func(t *testing.T) {
		launcher := tu.NewFakeLauncher()
		deps := newDeps(launcher)
		deps.Registry.Put(demo, installed)
		gog := NewGOG("", deps)

		gog.Update(context.Background(), models.NewOperationRequest(demo, models.OpUpdate, ""), nil)

		if len(launcher.CallsTo("remove-dlc")) != 0 {
			t.Error("nothing should be removed")
		}
		info, _ := deps.Registry.Get(demo)
		if len(info.InstalledDLCs) != 2 {
			t.Errorf("installed dlcs = %v", info.InstalledDLCs)
		}
	})

	t.Run("aborted update keeps the previous record", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("update", tu.Script{Block: true})
		deps := newDeps(launcher)
		deps.Registry.Put(demo, installed)
		gog := NewGOG("", deps)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		out := gog.Update(ctx, models.NewOperationRequest(demo, models.OpUpdate, ""), nil)
		if out.Status != models.OutcomeAbort {
			t.Fatalf("expected abort, got %+v", out)
		}

		info, _ := deps.Registry.Get(demo)
		if info.Version != "1.0" || len(info.InstalledDLCs) != 2 {
			t.Errorf("record changed after abort: %+v", info)
		}
	})

	t.Run("cancel during the info call keeps the previous record", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().
			On("update", tu.Script{}).
			On("info", tu.Script{Block: true})
		deps := newDeps(launcher)
		deps.Registry.Put(demo, installed)
		gog := NewGOG("", deps)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		out := gog.Update(ctx, models.NewOperationRequest(demo, models.OpUpdate, ""), nil)
		if out.Status != models.OutcomeAbort {
			t.Fatalf("expected abort, got %+v", out)
		}
		if len(launcher.CallsTo("info")) != 1 {
			t.Error("expected the update to reach the info call")
		}

		info, _ := deps.Registry.Get(demo)
		if info.Version != "1.0" || len(info.InstalledDLCs) != 2 {
			t.Errorf("record changed after abort: %+v", info)
		}
	})
}

func TestRepair(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.GOG)

	launcher := tu.NewFakeLauncher()
	deps := newDeps(launcher)
	deps.Registry.Put(demo, models.InstalledInfo{Platform: "linux", InstallPath: "/games/demo", BuildID: "7", Language: "de"})
	gog := NewGOG("", deps)

	req := models.NewOperationRequest(demo, models.OpRepair, "", models.WithPlatform("windows"), models.WithLanguage("en"))
	if out := gog.Repair(context.Background(), req, nil); !out.OK() {
		t.Fatalf("expected done, got %+v", out)
	}

	calls := launcher.CallsTo("repair")
	if len(calls) != 1 {
		t.Fatalf("expected one repair call, got %d", len(calls))
	}
	args := strings.Join(calls[0].Args, " ")
	for _, want := range []string{"--platform linux", "--lang de", "--build 7"} {
		if !strings.Contains(args, want) {
			t.Errorf("repair args %q should contain %q", args, want)
		}
	}
}

func TestImportGame(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.Legendary)
	dir := t.TempDir()

	launcher := tu.NewFakeLauncher()
	deps := newDeps(launcher)
	epic := NewLegendary("", deps)

	out := epic.ImportGame(context.Background(), models.NewOperationRequest(demo, models.OpImport, dir), nil)
	if !out.OK() {
		t.Fatalf("expected done, got %+v", out)
	}

	info, ok := deps.Registry.Get(demo)
	if !ok || info.InstallPath != dir {
		t.Errorf("unexpected record %+v", info)
	}
	if !epic.IsGameAvailable("demo") {
		t.Error("imported game should be available")
	}
}

func TestMoveInstall(t *testing.T) {
	t.Run("moves files when the downloader cannot", func(t *testing.T) {
		demo := models.NewGameIdentity("demo", models.GOG)
		root := t.TempDir()
		src := filepath.Join(root, "old", "demo")
		tu.MustWriteFile(t, filepath.Join(src, "game.bin"), "data")

		deps := newDeps(tu.NewFakeLauncher())
		deps.Registry.Put(demo, models.InstalledInfo{InstallPath: src})
		gog := NewGOG("", deps)

		out := gog.MoveInstall(context.Background(), models.NewOperationRequest(demo, models.OpMoveInstall, filepath.Join(root, "new")), nil)
		if !out.OK() {
			t.Fatalf("expected done, got %+v", out)
		}

		dest := filepath.Join(root, "new", "demo")
		tu.AssertFileExists(t, filepath.Join(dest, "game.bin"))
		tu.AssertNotExists(t, src)

		info, _ := deps.Registry.Get(demo)
		if info.InstallPath != dest {
			t.Errorf("install path = %q", info.InstallPath)
		}
	})

	t.Run("delegates to the downloader when supported", func(t *testing.T) {
		demo := models.NewGameIdentity("demo", models.Legendary)
		launcher := tu.NewFakeLauncher()
		deps := newDeps(launcher)
		deps.Registry.Put(demo, models.InstalledInfo{InstallPath: "/games/Demo"})
		epic := NewLegendary("", deps)

		out := epic.MoveInstall(context.Background(), models.NewOperationRequest(demo, models.OpMoveInstall, "/mnt/library"), nil)
		if !out.OK() {
			t.Fatalf("expected done, got %+v", out)
		}
		if len(launcher.CallsTo("move")) != 1 {
			t.Error("expected a move call")
		}
		info, _ := deps.Registry.Get(demo)
		if info.InstallPath != filepath.Join("/mnt/library", "Demo") {
			t.Errorf("install path = %q", info.InstallPath)
		}
	})
}

func TestUninstall(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.Legendary)

	t.Run("not installed is an error outcome", func(t *testing.T) {
		epic := NewLegendary("", newDeps(tu.NewFakeLauncher()))

		out := epic.Uninstall(context.Background(), "demo")
		if out.Status != models.OutcomeError || !strings.Contains(out.Message, shared.ErrNotInstalled.Error()) {
			t.Errorf("expected not installed, got %+v", out)
		}
	})

	t.Run("removes the record even when the uninstaller fails", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "Demo")
		tu.MustWriteFile(t, filepath.Join(dir, "game.exe"), "binary")

		launcher := tu.NewFakeLauncher().On("uninstall", tu.Script{ExitCode: 3})
		deps := newDeps(launcher)
		deps.Registry.Put(demo, models.InstalledInfo{InstallPath: dir})
		epic := NewLegendary("", deps)

		out := epic.Uninstall(context.Background(), "demo")
		if !out.OK() {
			t.Fatalf("expected done, got %+v", out)
		}
		if deps.Registry.IsInstalled(demo) {
			t.Error("record should be removed")
		}
		if len(launcher.CallsTo("uninstall")) != 1 {
			t.Error("uninstaller should have been attempted")
		}
		tu.AssertNotExists(t, dir)
	})
}

func TestGetGameInfo(t *testing.T) {
	launcher := tu.NewFakeLauncher().On("info", tu.Script{
		Stdout: `{"game":{"title":"Demo","version":"3.1"},"manifest":{"build_version":"3.1-b","disk_size":2048}}`,
	})
	deps := newDeps(launcher)
	deps.Store = kv.Memory()
	epic := NewLegendary("", deps)

	for range 2 {
		info, err := epic.GetGameInfo(context.Background(), "demo")
		if err != nil {
			t.Fatalf("GetGameInfo failed: %v", err)
		}
		if info.Title != "Demo" || info.LatestBuildID != "3.1-b" || info.InstallSize != 2048 {
			t.Errorf("unexpected info %+v", info)
		}
	}

	if n := len(launcher.CallsTo("info")); n != 1 {
		t.Errorf("second lookup should hit the cache, got %d info calls", n)
	}

	t.Run("malformed output is an error", func(t *testing.T) {
		launcher := tu.NewFakeLauncher().On("details", tu.Script{Stdout: "not json"})
		nile := NewNile("", newDeps(launcher))

		if _, err := nile.GetGameInfo(context.Background(), "demo"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestGetSettings(t *testing.T) {
	gog := NewGOG("", newDeps(tu.NewFakeLauncher()))

	gs, err := gog.GetSettings("demo")
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if !gs.AutoUpdate {
		t.Error("auto-update should default to on")
	}
}

func TestLaunchAndStop(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.Nile)
	dir := t.TempDir()

	launcher := tu.NewFakeLauncher().On("launch", tu.Script{Block: true})
	deps := newDeps(launcher)
	deps.Registry.Put(demo, models.InstalledInfo{InstallPath: dir})
	nile := NewNile("", deps)

	if err := nile.Stop("demo"); err == nil {
		t.Error("stopping a game that is not running should fail")
	}

	done := make(chan error, 1)
	go func() { done <- nile.Launch(context.Background(), "demo", []string{"--fullscreen"}) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(launcher.CallsTo("launch")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("launch never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := nile.Stop("demo"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("a stopped game should not report an error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Launch did not return after Stop")
	}

	call := launcher.CallsTo("launch")[0]
	if call.Dir != dir || !slices.Contains(call.Args, "--fullscreen") {
		t.Errorf("unexpected launch call %+v", call)
	}

	t.Run("missing files", func(t *testing.T) {
		deps.Registry.Put(demo, models.InstalledInfo{InstallPath: filepath.Join(dir, "gone")})
		if err := nile.Launch(context.Background(), "demo", nil); !errors.Is(err, shared.ErrGameNotAvailable) {
			t.Errorf("expected ErrGameNotAvailable, got %v", err)
		}
	})
}

func TestSet(t *testing.T) {
	deps := newDeps(tu.NewFakeLauncher())
	set := NewSet(NewNile("", deps), NewGOG("", deps), NewLegendary("", deps))

	names := []models.Backend{}
	for _, b := range set.All() {
		names = append(names, b.Name())
	}
	if !slices.Equal(names, []models.Backend{models.GOG, models.Legendary, models.Nile}) {
		t.Errorf("All() = %v", names)
	}

	b, err := set.Resolve(models.NewGameIdentity("demo", models.Legendary))
	if err != nil || b.Name() != models.Legendary {
		t.Errorf("Resolve = %v, %v", b, err)
	}

	if _, err := NewSet().Get(models.GOG); !errors.Is(err, shared.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}

	if _, err := New("steam", "", deps); !errors.Is(err, shared.ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestExecute(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.GOG)

	tests := []struct {
		kind models.OperationKind
		sub  string
	}{
		{models.OpInstall, "download"},
		{models.OpUpdate, "update"},
		{models.OpRepair, "repair"},
		{models.OpImport, "import"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			launcher := tu.NewFakeLauncher()
			deps := newDeps(launcher)
			deps.Registry.Put(demo, models.InstalledInfo{Platform: "windows", InstallPath: "/games/demo"})
			gog := NewGOG("", deps)

			out := Execute(context.Background(), gog, models.NewOperationRequest(demo, tt.kind, "/games"), nil)
			if !out.OK() {
				t.Fatalf("expected done, got %+v", out)
			}
			if len(launcher.CallsTo(tt.sub)) != 1 {
				t.Errorf("expected a %s call, got %+v", tt.sub, launcher.Calls())
			}
		})
	}

	t.Run("unknown kind", func(t *testing.T) {
		gog := NewGOG("", newDeps(tu.NewFakeLauncher()))
		out := Execute(context.Background(), gog, models.OperationRequest{Identity: demo, Kind: "defrag"}, nil)
		if out.Status != models.OutcomeError {
			t.Errorf("expected error, got %+v", out)
		}
	})
}

func TestIsGameAvailable(t *testing.T) {
	demo := models.NewGameIdentity("demo", models.GOG)
	deps := newDeps(tu.NewFakeLauncher())
	gog := NewGOG("", deps)

	if gog.IsGameAvailable("demo") {
		t.Error("uninstalled game is not available")
	}

	dir := t.TempDir()
	deps.Registry.Put(demo, models.InstalledInfo{InstallPath: dir})
	if !gog.IsGameAvailable("demo") {
		t.Error("installed game with files should be available")
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if gog.IsGameAvailable("demo") {
		t.Error("game without files is not available")
	}
}
