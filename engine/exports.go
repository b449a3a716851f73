package engine

import (
	"github.com/tetratelabs/wazero/api"

	inochi2d "github.com/Thog/inochi2d-go"
)

// Native entry point names.
const (
	exportMemory         = "memory"
	exportAlloc          = "inAlloc"
	exportFree           = "inFree"
	exportInit           = "inInit"
	exportCleanup        = "inCleanup"
	exportPuppetLoadEx   = "inPuppetLoadEx"
	exportPuppetLoadMem  = "inPuppetLoadFromMemory"
	exportPuppetGetName  = "inPuppetGetName"
	exportPuppetUpdate   = "inPuppetUpdate"
	exportPuppetDraw     = "inPuppetDraw"
	exportPuppetDestroy  = "inPuppetDestroy"
	exportErrorGet       = "inErrorGet"
	exportSceneBegin     = "inSceneBegin"
	exportSceneEnd       = "inSceneEnd"
	exportSceneDraw      = "inSceneDraw"
	hostModuleName       = "inochi2d_host"
	hostTimingName       = "timing"
	defaultGuestName     = "inochi2d"
	reactorInitFunction  = "_initialize"
	textRecordHeaderSize = 8
)

// exports holds the bound guest functions. Optional ones may be nil.
type exports struct {
	alloc      api.Function
	free       api.Function
	init       api.Function
	cleanup    api.Function
	loadEx     api.Function
	loadMem    api.Function
	getName    api.Function
	update     api.Function
	draw       api.Function
	destroy    api.Function
	errorGet   api.Function
	sceneBegin api.Function
	sceneEnd   api.Function
	sceneDraw  api.Function
}

// bindExports looks up every entry point and reports the required ones that
// are missing.
func bindExports(mod api.Module) (exports, []string) {
	var missing []string
	required := func(name string) api.Function {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
		}
		return fn
	}

	ex := exports{
		alloc:      required(exportAlloc),
		free:       required(exportFree),
		init:       required(exportInit),
		cleanup:    mod.ExportedFunction(exportCleanup),
		loadEx:     required(exportPuppetLoadEx),
		loadMem:    required(exportPuppetLoadMem),
		getName:    mod.ExportedFunction(exportPuppetGetName),
		update:     required(exportPuppetUpdate),
		draw:       mod.ExportedFunction(exportPuppetDraw),
		destroy:    required(exportPuppetDestroy),
		errorGet:   required(exportErrorGet),
		sceneBegin: mod.ExportedFunction(exportSceneBegin),
		sceneEnd:   mod.ExportedFunction(exportSceneEnd),
		sceneDraw:  mod.ExportedFunction(exportSceneDraw),
	}
	return ex, missing
}

// capabilities derives the optional feature set from the bound exports.
func (ex exports) capabilities() inochi2d.Capabilities {
	var caps inochi2d.Capabilities
	if ex.draw != nil && ex.sceneBegin != nil && ex.sceneEnd != nil && ex.sceneDraw != nil {
		caps |= inochi2d.CapRender
	}
	if ex.getName != nil {
		caps |= inochi2d.CapPuppetName
	}
	return caps
}
