//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package main

import (
	"errors"
	"fmt"
	"math"
	osuser "os/user"
	"strconv"
	"strings"
	"syscall"
)

// chuser switches the process to "user" or "user:group", given by name or
// numeric id. Without a group the user's primary group is used.
func chuser(input string) error {
	givenUser, givenGroup, found := strings.Cut(input, ":")
	if givenUser == "" || (found && givenGroup == "") {
		return fmt.Errorf("user %q is not valid", input)
	}

	var err error
	var usr *osuser.User
	if _, err = strconv.ParseUint(givenUser, 10, 32); err == nil {
		usr, err = osuser.LookupId(givenUser)
	} else {
		usr, err = osuser.Lookup(givenUser)
	}
	if err != nil {
		return fmt.Errorf("failed to lookup user %q: %v", givenUser, err)
	}

	gidString := usr.Gid
	if found {
		var grp *osuser.Group
		if _, err = strconv.ParseUint(givenGroup, 10, 32); err == nil {
			grp, err = osuser.LookupGroupId(givenGroup)
		} else {
			grp, err = osuser.LookupGroup(givenGroup)
		}
		if err != nil {
			return fmt.Errorf("failed to lookup group %q: %v", givenGroup, err)
		}
		gidString = grp.Gid
	}

	gid, _ := strconv.ParseUint(gidString, 10, 32)
	uid, _ := strconv.ParseUint(usr.Uid, 10, 32)
	if gid > math.MaxInt32 || uid > math.MaxInt32 {
		return errors.New("uid or gid too big")
	}
	if err := syscall.Setgroups([]int{int(gid)}); err != nil {
		return fmt.Errorf("failed to setgroups %d: %v", gid, err)
	}
	if err := syscall.Setgid(int(gid)); err != nil {
		return fmt.Errorf("failed to setgid %d: %v", gid, err)
	}
	if err := syscall.Setuid(int(uid)); err != nil {
		return fmt.Errorf("failed to setuid %d: %v", uid, err)
	}
	return nil
}
