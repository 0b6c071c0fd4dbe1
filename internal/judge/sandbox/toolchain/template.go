package toolchain

import (
	"strconv"
	"strings"

	"github.com/google/shlex"

	appErr "algojudge/pkg/errors"
)

// Vars are the placeholders available to command templates.
type Vars struct {
	Compiler string
	Runtime  string
	Src      string
	Bin      string
	Dir      string
	Entry    string
	MemoryMB int64
}

// Expand substitutes placeholders and splits the template into argv.
func Expand(tpl string, vars Vars) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	replacer := strings.NewReplacer(
		"{compiler}", vars.Compiler,
		"{runtime}", vars.Runtime,
		"{src}", vars.Src,
		"{bin}", vars.Bin,
		"{dir}", vars.Dir,
		"{entry}", vars.Entry,
		"{memoryMB}", strconv.FormatInt(vars.MemoryMB, 10),
	)
	fields, err := shlex.Split(replacer.Replace(tpl))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}
