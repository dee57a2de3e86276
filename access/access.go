// Package access provides the default access-management model: users, roles,
// permissions, access groups, resources, passwords, user data and sessions,
// together with the records a fresh database is seeded with.
//
// Passwords are stored with the password-1 scheme (see Password1). Seed
// records compute them with the "password" seed function:
//
//	password: { functionName: password, args: [ "#staticSalt", "$associations.user.username", admin1234 ] }
package access

import (
	"embed"
	"fmt"

	"github.com/syssam/relgraph/schema"
	"github.com/syssam/relgraph/seed"
)

//go:embed models/*.yaml data/*.yaml
var files embed.FS

// Entity names of the model.
const (
	User        = "user"
	Role        = "role"
	Permission  = "permission"
	AccessGroup = "access_group"
	Resource    = "resource"
	Password    = "password"
	UserData    = "user_data"
	Session     = "session"
)

// StaticSaltConstant is the seed constant holding the hex-encoded static salt.
const StaticSaltConstant = "staticSalt"

// Models returns the entity descriptors of the access model.
func Models() ([]*schema.Entity, error) {
	return schema.LoadFS(files, "models/*.yaml")
}

// Register adds the "password" seed function and the static salt constant to
// a function registry.
func Register(f *seed.Functions, staticSalt string) {
	f.Constant(StaticSaltConstant, staticSalt)
	f.Register("password", passwordFunc)
}

// Seed registers the seed functions on the loader and queues the default
// access records.
func Seed(ld *seed.Loader, staticSalt string) error {
	Register(ld.Functions(), staticSalt)
	return ld.LoadFS(files, "data/*.yaml")
}

// passwordFunc takes the static salt, the username and the plain password.
func passwordFunc(args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("access: password takes 3 arguments, got %d", len(args))
	}
	var s [3]string
	for i, a := range args {
		v, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("access: password argument %d is %T, want string", i, a)
		}
		s[i] = v
	}
	return Password1(s[0], s[1], s[2])
}
