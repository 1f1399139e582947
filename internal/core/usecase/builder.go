package usecase

import (
	"net/url"
	"strings"

	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
)

// BuildRequest assembles the outbound request from normalized values. Absent
// fields are never sent. The page field, when declared, is translated to the
// upstream origin here and nowhere else.
func BuildRequest(op domain.Operation, values map[string]domain.Value) domain.Request {
	transport := op.Transport
	if transport == "" {
		transport = domain.TransportQuery
	}

	req := domain.Request{
		Operation: op.Name,
		Method:    strings.ToUpper(op.Method),
		Path:      op.Path,
		Transport: transport,
		Params:    make(map[string]any),
	}

	for _, f := range op.Fields {
		v := values[f.Name]
		if !v.Present() {
			continue
		}
		if op.Page != nil && op.Page.Field == f.Name {
			v.Int = op.Page.Translate(v.Int)
		}
		if op.Location(f) == domain.InPath {
			req.Path = strings.ReplaceAll(req.Path, "{"+f.UpstreamName()+"}", url.PathEscape(v.String()))
			continue
		}
		req.Params[f.UpstreamName()] = v.Interface()
	}
	return req
}
