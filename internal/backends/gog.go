package backends

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/progress"
)

// GOG drives the gogdl downloader.
type GOG struct {
	*runner
}

var _ Backend = (*GOG)(nil)

func NewGOG(binary string, deps Deps) *GOG {
	if binary == "" {
		binary = "gogdl"
	}
	return &GOG{runner: newRunner(gogCLI{}, binary, deps)}
}

type gogCLI struct{}

func (gogCLI) tag() models.Backend           { return models.GOG }
func (gogCLI) patterns() progress.PatternSet { return progress.GOG() }
func (gogCLI) defaultPlatform() string       { return "windows" }

func gogSelection(args []string, lang, branch, build string, dlcs []string) []string {
	if lang != "" {
		args = append(args, "--lang", lang)
	}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	if build != "" {
		args = append(args, "--build", build)
	}
	if len(dlcs) > 0 {
		return append(args, "--with-dlcs", "--dlcs", strings.Join(dlcs, ","))
	}
	return append(args, "--skip-dlcs")
}

func (gogCLI) installArgs(req models.OperationRequest, platform string) []string {
	args := []string{"download", req.Identity.AppName, "--platform", platform, "--path", req.TargetPath}
	return gogSelection(args, req.Language, req.Branch, req.Build, req.DLCs)
}

func (gogCLI) updateArgs(req models.OperationRequest, installed models.InstalledInfo, dlcs []string) []string {
	args := []string{"update", installed.AppName, "--platform", installed.Platform, "--path", installed.InstallPath}
	return gogSelection(args, firstNonEmpty(req.Language, installed.Language), firstNonEmpty(req.Branch, installed.Branch), req.Build, dlcs)
}

func (gogCLI) repairArgs(installed models.InstalledInfo) []string {
	args := []string{"repair", installed.AppName, "--platform", installed.Platform, "--path", installed.InstallPath}
	return gogSelection(args, installed.Language, installed.Branch, installed.BuildID, installed.InstalledDLCs)
}

func (gogCLI) importArgs(req models.OperationRequest, _ string) []string {
	return []string{"import", req.TargetPath}
}

func (gogCLI) moveArgs(models.InstalledInfo, string) ([]string, bool) { return nil, false }

func (gogCLI) infoArgs(appName, platform string) []string {
	return []string{"info", appName, "--platform", platform}
}

func (gogCLI) removeDLCArgs(installed models.InstalledInfo, dlc string) []string {
	return []string{"remove-dlc", installed.AppName, dlc, "--path", installed.InstallPath}
}

func (gogCLI) launchArgs(installed models.InstalledInfo, extra []string) []string {
	args := []string{"launch", installed.InstallPath, installed.AppName, "--platform", installed.Platform}
	return append(args, extra...)
}

// parseInfo reads gogdl's info document. Sizes are reported per language;
// the largest is kept.
func (gogCLI) parseInfo(appName string, doc gjson.Result) metadata {
	info := models.GameInfo{
		AppName:       appName,
		Title:         doc.Get("title").String(),
		LatestVersion: doc.Get("versionName").String(),
		LatestBuildID: doc.Get("buildId").String(),
	}
	doc.Get("size").ForEach(func(_, lang gjson.Result) bool {
		info.InstallSize = max(info.InstallSize, lang.Get("disk_size").Int())
		info.DownloadSize = max(info.DownloadSize, lang.Get("download_size").Int())
		return true
	})
	for _, id := range doc.Get("dlcs.#.id").Array() {
		info.DLCs = append(info.DLCs, id.String())
	}
	for _, p := range doc.Get("platforms").Array() {
		info.Platforms = append(info.Platforms, p.String())
	}
	return metadata{Info: info, Folder: doc.Get("folder_name").String(), Executable: doc.Get("executable").String()}
}

// uninstaller runs the bundled uninstall.sh of native Linux builds.
func (gogCLI) uninstaller(_ string, installed models.InstalledInfo) (command, bool) {
	return scriptIn(installed.InstallPath, "uninstall.sh")
}

// postInstall runs support/postinst.sh when the build ships one.
func (gogCLI) postInstall(installed models.InstalledInfo) (command, bool) {
	return scriptIn(installed.InstallPath, filepath.Join("support", "postinst.sh"))
}

func scriptIn(dir, rel string) (command, bool) {
	if dir == "" {
		return command{}, false
	}
	script := filepath.Join(dir, rel)
	if _, err := os.Stat(script); err != nil {
		return command{}, false
	}
	return command{name: "sh", args: []string{script}, dir: dir}, true
}
