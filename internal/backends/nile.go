package backends

import (
	"github.com/tidwall/gjson"

	"github.com/desertthunder/gamekeep/internal/models"
	"github.com/desertthunder/gamekeep/internal/progress"
)

// Nile drives the nile downloader for Amazon Games. Amazon only ships Windows builds.
type Nile struct {
	*runner
}

var _ Backend = (*Nile)(nil)

func NewNile(binary string, deps Deps) *Nile {
	if binary == "" {
		binary = "nile"
	}
	return &Nile{runner: newRunner(nileCLI{}, binary, deps)}
}

type nileCLI struct{}

func (nileCLI) tag() models.Backend           { return models.Nile }
func (nileCLI) patterns() progress.PatternSet { return progress.Nile() }
func (nileCLI) defaultPlatform() string       { return "windows" }

func (nileCLI) installArgs(req models.OperationRequest, _ string) []string {
	return []string{"install", req.Identity.AppName, "--base-path", req.TargetPath}
}

func (nileCLI) updateArgs(_ models.OperationRequest, installed models.InstalledInfo, _ []string) []string {
	return []string{"update", installed.AppName}
}

func (nileCLI) repairArgs(installed models.InstalledInfo) []string {
	return []string{"verify", installed.AppName}
}

func (nileCLI) importArgs(req models.OperationRequest, _ string) []string {
	return []string{"import", req.Identity.AppName, "--path", req.TargetPath}
}

func (nileCLI) moveArgs(models.InstalledInfo, string) ([]string, bool) { return nil, false }

func (nileCLI) infoArgs(appName, _ string) []string {
	return []string{"details", appName, "--json"}
}

func (nileCLI) removeDLCArgs(_ models.InstalledInfo, dlc string) []string {
	return []string{"uninstall", dlc}
}

func (nileCLI) launchArgs(installed models.InstalledInfo, extra []string) []string {
	return append([]string{"launch", installed.AppName}, extra...)
}

func (nileCLI) parseInfo(appName string, doc gjson.Result) metadata {
	info := models.GameInfo{
		AppName:       appName,
		Title:         doc.Get("product.title").String(),
		LatestVersion: doc.Get("version").String(),
		LatestBuildID: doc.Get("versionId").String(),
		InstallSize:   doc.Get("size.disk").Int(),
		DownloadSize:  doc.Get("size.download").Int(),
		Platforms:     []string{"windows"},
	}
	for _, dlc := range doc.Get("dlcs.#.id").Array() {
		info.DLCs = append(info.DLCs, dlc.String())
	}
	return metadata{Info: info, Folder: doc.Get("folder_name").String()}
}

func (nileCLI) uninstaller(binary string, installed models.InstalledInfo) (command, bool) {
	return command{name: binary, args: []string{"uninstall", installed.AppName, "--keep-files"}}, true
}

func (nileCLI) postInstall(models.InstalledInfo) (command, bool) { return command{}, false }
