package backends

import (
	"github.com/tidwall/gjson"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/progress"
)

// Legendary drives the legendary downloader for the Epic Games Store.
type Legendary struct {
	*runner
}

var _ Backend = (*Legendary)(nil)

func NewLegendary(binary string, deps Deps) *Legendary {
	if binary == "" {
		binary = "legendary"
	}
	return &Legendary{runner: newRunner(legendaryCLI{}, binary, deps)}
}

type legendaryCLI struct{}

func (legendaryCLI) tag() models.Backend           { return models.Legendary }
func (legendaryCLI) patterns() progress.PatternSet { return progress.Legendary() }
func (legendaryCLI) defaultPlatform() string       { return "Windows" }

func dlcFlag(dlcs []string) string {
	if len(dlcs) > 0 {
		return "--with-dlcs"
	}
	return "--skip-dlcs"
}

func (legendaryCLI) installArgs(req models.OperationRequest, platform string) []string {
	args := []string{"install", req.Identity.AppName, "--base-path", req.TargetPath, "--platform", platform, "-y", dlcFlag(req.DLCs)}
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}
	if req.Build != "" {
		args = append(args, "--version", req.Build)
	}
	return args
}

func (legendaryCLI) updateArgs(req models.OperationRequest, installed models.InstalledInfo, dlcs []string) []string {
	args := []string{"update", installed.AppName, "-y", dlcFlag(dlcs)}
	if req.Build != "" {
		args = append(args, "--version", req.Build)
	}
	return args
}

func (legendaryCLI) repairArgs(installed models.InstalledInfo) []string {
	return []string{"repair", installed.AppName, "-y"}
}

func (legendaryCLI) importArgs(req models.OperationRequest, platform string) []string {
	return []string{"import", req.Identity.AppName, req.TargetPath, "--platform", platform, dlcFlag(req.DLCs)}
}

func (legendaryCLI) moveArgs(installed models.InstalledInfo, targetBase string) ([]string, bool) {
	return []string{"move", installed.AppName, targetBase, "-y"}, true
}

func (legendaryCLI) infoArgs(appName, _ string) []string {
	return []string{"info", appName, "--json"}
}

// DLCs are separate apps in legendary, uninstalled by their own app name.
func (legendaryCLI) removeDLCArgs(_ models.InstalledInfo, dlc string) []string {
	return []string{"uninstall", dlc, "-y"}
}

func (legendaryCLI) launchArgs(installed models.InstalledInfo, extra []string) []string {
	return append([]string{"launch", installed.AppName}, extra...)
}

func (legendaryCLI) parseInfo(appName string, doc gjson.Result) metadata {
	info := models.GameInfo{
		AppName:       appName,
		Title:         doc.Get("game.title").String(),
		LatestVersion: doc.Get("game.version").String(),
		LatestBuildID: doc.Get("manifest.build_version").String(),
		InstallSize:   doc.Get("manifest.disk_size").Int(),
		DownloadSize:  doc.Get("manifest.download_size").Int(),
	}
	for _, dlc := range doc.Get("game.owned_dlc.#.app_name").Array() {
		info.DLCs = append(info.DLCs, dlc.String())
	}
	doc.Get("game.platform_versions").ForEach(func(platform, _ gjson.Result) bool {
		info.Platforms = append(info.Platforms, platform.String())
		return true
	})
	return metadata{
		Info:       info,
		Folder:     doc.Get("game.folder_name").String(),
		Executable: doc.Get("manifest.launch_exe").String(),
	}
}

// uninstaller unregisters the game with legendary; files are deleted by the caller.
func (legendaryCLI) uninstaller(binary string, installed models.InstalledInfo) (command, bool) {
	return command{name: binary, args: []string{"uninstall", installed.AppName, "-y", "--keep-files"}}, true
}

func (legendaryCLI) postInstall(models.InstalledInfo) (command, bool) { return command{}, false }
