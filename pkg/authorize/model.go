package authorize

import (
	"github.com/casbin/casbin/v2/model"
)

// defaultModel is RBAC with domains and explicit deny. Subjects are role
// tags; g lets one role inherit another inside a domain.
const defaultModel = `[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act, eft

[role_definition]
g = _, _, _

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = (r.sub == p.sub || g(r.sub, p.sub, r.dom)) && (p.dom == "*" || p.dom == r.dom) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

// LoadModel reads the casbin model at path, or the built-in model when path
// is empty.
func LoadModel(path string) (model.Model, error) {
	if path == "" {
		return model.NewModelFromString(defaultModel)
	}
	return model.NewModelFromFile(path)
}
