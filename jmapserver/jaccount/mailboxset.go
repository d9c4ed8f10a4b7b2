package jaccount

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mjl-/bstore"
	"golang.org/x/exp/slices"

	"github.com/jmapd/jmapd/jmapserver/basetypes"
	"github.com/jmapd/jmapd/jmapserver/mlevelerrors"
	"github.com/jmapd/jmapd/store"
)

// serverSetMailboxProperties cannot be set or updated by the client.
var serverSetMailboxProperties = []string{
	"id", "role", "sortOrder", "totalEmails", "unreadEmails",
	"totalThreads", "unreadThreads", "myRights", "namespace", "quotas",
}

// SetMailboxes implements the create, update and destroy semantics of
// Mailbox/set. Items fail independently, one failed item never aborts its
// siblings. createdIDs carries the creation-ids defined by earlier set calls
// in the same request and is extended with the creates of this call.
func (ja *JAccount) SetMailboxes(ctx context.Context, ifInState *string, create map[basetypes.Id]json.RawMessage, update map[basetypes.Id]basetypes.PatchObject, destroy []basetypes.Id, createdIDs *basetypes.CreatedIDs, onDestroyRemoveEmails bool) (oldState, newState string, created, updated map[basetypes.Id]any, destroyed []basetypes.Id, notCreated, notUpdated, notDestroyed map[basetypes.Id]mlevelerrors.SetError, mErr *mlevelerrors.MethodLevelError) {

	created = map[basetypes.Id]any{}
	updated = map[basetypes.Id]any{}
	notCreated = map[basetypes.Id]mlevelerrors.SetError{}
	notUpdated = map[basetypes.Id]mlevelerrors.SetError{}
	notDestroyed = map[basetypes.Id]mlevelerrors.SetError{}

	oldState, err := store.MailboxState(ctx, ja.DB())
	if err != nil {
		ja.mlog.Errorx("getting mailbox state", err)
		return "", "", nil, nil, nil, nil, nil, nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}
	if ifInState != nil && *ifInState != oldState {
		return "", "", nil, nil, nil, nil, nil, nil, mlevelerrors.NewMethodLevelErrorStateMismatch()
	}
	newState = oldState

	err = ja.DB().Write(ctx, func(tx *bstore.Tx) error {
		var modSeq int64
		nextModSeq := func() (int64, error) {
			if modSeq == 0 {
				var err error
				modSeq, err = store.NextModSeq(tx)
				if err != nil {
					return 0, err
				}
			}
			return modSeq, nil
		}

		//creates are processed in lexical creation-id order, so a create can
		//reference an earlier sibling create through its creation-id
		var creationIDs []basetypes.Id
		for cid := range create {
			creationIDs = append(creationIDs, cid)
		}
		sort.Slice(creationIDs, func(i, j int) bool {
			return creationIDs[i] < creationIDs[j]
		})

		for _, cid := range creationIDs {
			item, setErr, err := ja.createMailbox(tx, create[cid], createdIDs, nextModSeq)
			if err != nil {
				return err
			}
			if setErr != nil {
				notCreated[cid] = *setErr
				continue
			}
			createdIDs.Add(cid, item.Id)
			created[cid] = item
		}

		var updateIDs []basetypes.Id
		for id := range update {
			updateIDs = append(updateIDs, id)
		}
		sort.Slice(updateIDs, func(i, j int) bool {
			return updateIDs[i] < updateIDs[j]
		})

		for _, id := range updateIDs {
			setErr, err := ja.updateMailbox(tx, id, update[id], createdIDs, nextModSeq)
			if err != nil {
				return err
			}
			if setErr != nil {
				notUpdated[id] = *setErr
				continue
			}
			updated[id] = nil
		}

		for _, id := range destroy {
			resolvedID, setErr, err := ja.destroyMailbox(tx, id, createdIDs, onDestroyRemoveEmails, nextModSeq)
			if err != nil {
				return err
			}
			if setErr != nil {
				notDestroyed[id] = *setErr
				continue
			}
			destroyed = append(destroyed, resolvedID)
		}

		if modSeq > 0 {
			newState = fmt.Sprintf("%d", modSeq)
		}
		return nil
	})
	if err != nil {
		ja.mlog.Errorx("mailbox set transaction", err)
		return "", "", nil, nil, nil, nil, nil, nil, mlevelerrors.NewMethodLevelErrorServerFail()
	}

	return oldState, newState, created, updated, destroyed, notCreated, notUpdated, notDestroyed, nil
}

// resolveMailboxID resolves an id that may be a "#creation-id" reference to
// the stored mailbox id.
func resolveMailboxID(id basetypes.Id, createdIDs *basetypes.CreatedIDs) (int64, *mlevelerrors.SetError) {
	if ref, ok := id.CreationRef(); ok {
		serverID, ok := createdIDs.Resolve(ref)
		if !ok {
			return 0, mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("%s not used in previously defined creationIds", id))
		}
		id = serverID
	}
	idInt, err := id.Int64()
	if err != nil {
		return 0, mlevelerrors.NewSetErrorNotFound()
	}
	return idInt, nil
}

func validateMailboxName(name string) *mlevelerrors.SetError {
	if name == "" {
		return mlevelerrors.NewSetErrorInvalidArguments("name cannot be empty", "name")
	}
	if strings.Contains(name, store.MailboxHierarchyDelimiter) {
		return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("name cannot contain the hierarchy delimiter %q", store.MailboxHierarchyDelimiter), "name")
	}
	if utf8.RuneCountInString(name) > store.MaxMailboxNameLength {
		return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("name cannot be longer than %d characters", store.MaxMailboxNameLength), "name")
	}
	return nil
}

// nameInUse reports whether owner already has a mailbox called name under
// parentID, ignoring excludeID.
func nameInUse(tx *bstore.Tx, owner string, parentID int64, name string, excludeID int64) (bool, error) {
	exists, err := bstore.QueryTx[store.Mailbox](tx).
		FilterNonzero(store.Mailbox{Owner: owner}).
		FilterEqual("ParentID", parentID).
		FilterEqual("Name", name).
		FilterFn(func(mb store.Mailbox) bool {
			return mb.ID != excludeID
		}).
		Exists()
	if err != nil {
		return false, fmt.Errorf("checking name uniqueness: %w", err)
	}
	return exists, nil
}

func hasChildren(tx *bstore.Tx, id int64) (bool, error) {
	return bstore.QueryTx[store.Mailbox](tx).
		FilterNonzero(store.Mailbox{ParentID: id}).
		Exists()
}

func isAncestor(tx *bstore.Tx, ancestorID int64, mb store.Mailbox) (bool, error) {
	for mb.ParentID != 0 {
		if mb.ParentID == ancestorID {
			return true, nil
		}
		parent := store.Mailbox{ID: mb.ParentID}
		if err := tx.Get(&parent); err != nil {
			return false, err
		}
		mb = parent
	}
	return false, nil
}

// parseRightsList parses a JSON list of single-character right codes into a
// rights string. singleOnly additionally requires exactly one element, the
// restriction on the rights map of a create.
func parseRightsList(value any, singleOnly bool) (string, *mlevelerrors.SetError) {
	list, ok := value.([]interface{})
	if !ok {
		return "", mlevelerrors.NewSetErrorInvalidArguments("rights must be a list of right codes", "rights")
	}
	if singleOnly && len(list) != 1 {
		return "", mlevelerrors.NewSetErrorInvalidArguments("rights must contain exactly one right per entry", "rights")
	}
	var rights string
	for _, el := range list {
		code, ok := el.(string)
		if !ok || !store.ValidRight(code) {
			return "", mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("unknown right %v", el), "rights")
		}
		if !strings.Contains(rights, code) {
			rights += code
		}
	}
	return rights, nil
}

func (ja *JAccount) createMailbox(tx *bstore.Tx, raw json.RawMessage, createdIDs *basetypes.CreatedIDs, nextModSeq func() (int64, error)) (MailboxCreated, *mlevelerrors.SetError, error) {
	var props map[string]json.RawMessage
	if err := json.Unmarshal(raw, &props); err != nil {
		return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("create is not an object"), nil
	}

	var keys []string
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var name string
	var parentIDRef *basetypes.Id
	isSubscribed := true
	rights := map[string]string{}

	for _, k := range keys {
		switch k {
		case "name":
			if err := json.Unmarshal(props[k], &name); err != nil {
				return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("name must be a string", "name"), nil
			}
		case "parentId":
			var pID *basetypes.Id
			if err := json.Unmarshal(props[k], &pID); err != nil {
				return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("parentId must be an id or null", "parentId"), nil
			}
			parentIDRef = pID
		case "isSubscribed":
			if err := json.Unmarshal(props[k], &isSubscribed); err != nil {
				return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("isSubscribed must be a boolean", "isSubscribed"), nil
			}
		case "rights", "sharedWith":
			var rightsLists map[string][]interface{}
			if err := json.Unmarshal(props[k], &rightsLists); err != nil {
				return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("rights must be a map of principal to right codes", k), nil
			}
			for principal, list := range rightsLists {
				r, setErr := parseRightsList(list, true)
				if setErr != nil {
					return MailboxCreated{}, setErr, nil
				}
				rights[principal] = r
			}
		default:
			if slices.Contains(serverSetMailboxProperties, k) {
				return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("%s cannot be set by the client", k), k), nil
			}
			return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("unknown property %s", k), k), nil
		}
	}

	if setErr := validateMailboxName(name); setErr != nil {
		return MailboxCreated{}, setErr, nil
	}

	owner := ja.user
	var parentID int64
	if parentIDRef != nil {
		var setErr *mlevelerrors.SetError
		parentID, setErr = resolveMailboxID(*parentIDRef, createdIDs)
		if setErr != nil {
			if setErr.Type == "notFound" {
				setErr = mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId")
			}
			setErr.Properties = []string{"parentId"}
			return MailboxCreated{}, setErr, nil
		}
		parent := store.Mailbox{ID: parentID}
		err := tx.Get(&parent)
		if err == bstore.ErrAbsent {
			return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId"), nil
		} else if err != nil {
			return MailboxCreated{}, nil, fmt.Errorf("getting parent mailbox: %w", err)
		}
		if !parent.Visible(ja.user) {
			return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId"), nil
		}
		if !parent.HasRight(ja.user, store.RightInsert) {
			return MailboxCreated{}, mlevelerrors.NewSetErrorForbidden("insufficient rights on parent mailbox", "parentId"), nil
		}
		owner = parent.Owner
	}

	inUse, err := nameInUse(tx, owner, parentID, name, 0)
	if err != nil {
		return MailboxCreated{}, nil, err
	}
	if inUse {
		return MailboxCreated{}, mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("mailbox %s already exists", name), "name"), nil
	}

	modSeq, err := nextModSeq()
	if err != nil {
		return MailboxCreated{}, nil, err
	}

	mb := store.Mailbox{
		Name:      name,
		ParentID:  parentID,
		Owner:     owner,
		SortOrder: store.DefaultSortOrder,
		Rights:    rights,
		ModSeq:    modSeq,
		CreateSeq: modSeq,
	}
	if err := tx.Insert(&mb); err != nil {
		return MailboxCreated{}, nil, fmt.Errorf("inserting mailbox: %w", err)
	}

	if isSubscribed {
		sub := store.Subscription{
			Key:       store.SubscriptionKey(ja.user, mb.ID),
			User:      ja.user,
			MailboxID: mb.ID,
		}
		if err := tx.Insert(&sub); err != nil {
			return MailboxCreated{}, nil, fmt.Errorf("inserting subscription: %w", err)
		}
	}

	return MailboxCreated{
		Id:           basetypes.NewIdFromInt64(mb.ID),
		SortOrder:    basetypes.Uint(mb.SortOrder),
		MyRights:     rightsForUser(mb, ja.user),
		IsSubscribed: isSubscribed,
		Namespace:    namespaceFor(mb, ja.user),
	}, nil, nil
}

func (ja *JAccount) updateMailbox(tx *bstore.Tx, id basetypes.Id, patch basetypes.PatchObject, createdIDs *basetypes.CreatedIDs, nextModSeq func() (int64, error)) (*mlevelerrors.SetError, error) {
	mbID, setErr := resolveMailboxID(id, createdIDs)
	if setErr != nil {
		return setErr, nil
	}

	mb := store.Mailbox{ID: mbID}
	err := tx.Get(&mb)
	if err == bstore.ErrAbsent {
		return mlevelerrors.NewSetErrorNotFound(), nil
	} else if err != nil {
		return nil, fmt.Errorf("getting mailbox: %w", err)
	}
	if !mb.Visible(ja.user) {
		return mlevelerrors.NewSetErrorNotFound(), nil
	}

	var paths []string
	hasSharedWithReset := false
	for path := range patch {
		paths = append(paths, path)
		if path == "/sharedWith" {
			hasSharedWithReset = true
		}
	}
	sort.Strings(paths)

	mbChanged := false
	subscriptionChange := 0 // 1 subscribe, -1 unsubscribe

	for _, path := range paths {
		value := patch[path]

		if !strings.HasPrefix(path, "/") {
			return mlevelerrors.NewSetErrorInvalidPatch(fmt.Sprintf("invalid path %s, paths must start with /", path)), nil
		}

		switch {
		case path == "/name":
			newName, ok := value.(string)
			if !ok {
				return mlevelerrors.NewSetErrorInvalidArguments("name must be a string", "name"), nil
			}
			if mb.Role != "" {
				return mlevelerrors.NewSetErrorInvalidArguments("cannot rename a system mailbox", "name"), nil
			}
			if mb.Owner != ja.user {
				//a delegatee may not rename, reported indistinguishable from absence
				return mlevelerrors.NewSetErrorNotFound(), nil
			}
			if setErr := validateMailboxName(newName); setErr != nil {
				return setErr, nil
			}
			if newName == mb.Name {
				continue
			}
			inUse, err := nameInUse(tx, mb.Owner, mb.ParentID, newName, mb.ID)
			if err != nil {
				return nil, err
			}
			if inUse {
				return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("mailbox %s already exists", newName), "name"), nil
			}
			mb.Name = newName
			mbChanged = true

		case path == "/parentId":
			if mb.Role != "" {
				return mlevelerrors.NewSetErrorInvalidArguments("cannot move a system mailbox", "parentId"), nil
			}
			if mb.Owner != ja.user {
				return mlevelerrors.NewSetErrorNotFound(), nil
			}

			var newParentID int64
			if value != nil {
				refStr, ok := value.(string)
				if !ok {
					return mlevelerrors.NewSetErrorInvalidArguments("parentId must be an id or null", "parentId"), nil
				}
				newParentID, setErr = resolveMailboxID(basetypes.Id(refStr), createdIDs)
				if setErr != nil {
					if setErr.Type == "notFound" {
						setErr = mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId")
					}
					setErr.Properties = []string{"parentId"}
					return setErr, nil
				}
			}
			if newParentID == mb.ParentID {
				continue
			}
			if newParentID != 0 {
				parent := store.Mailbox{ID: newParentID}
				err := tx.Get(&parent)
				if err == bstore.ErrAbsent {
					return mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId"), nil
				} else if err != nil {
					return nil, fmt.Errorf("getting parent mailbox: %w", err)
				}
				if !parent.Visible(ja.user) {
					return mlevelerrors.NewSetErrorInvalidArguments("parentId not found", "parentId"), nil
				}
				if parent.Owner != mb.Owner {
					return mlevelerrors.NewSetErrorInvalidArguments("cannot move a mailbox to another account", "parentId"), nil
				}
				if parent.ID == mb.ID {
					return mlevelerrors.NewSetErrorInvalidArguments("cannot move a mailbox below itself", "parentId"), nil
				}
				below, err := isAncestor(tx, mb.ID, parent)
				if err != nil {
					return nil, err
				}
				if below {
					return mlevelerrors.NewSetErrorInvalidArguments("cannot move a mailbox below itself", "parentId"), nil
				}
			}
			children, err := hasChildren(tx, mb.ID)
			if err != nil {
				return nil, err
			}
			if children {
				return mlevelerrors.NewSetErrorInvalidArguments("cannot move a mailbox that has children", "parentId"), nil
			}
			inUse, err := nameInUse(tx, mb.Owner, newParentID, mb.Name, mb.ID)
			if err != nil {
				return nil, err
			}
			if inUse {
				return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("mailbox %s already exists", mb.Name), "parentId"), nil
			}
			mb.ParentID = newParentID
			mbChanged = true

		case path == "/isSubscribed":
			//null means the default, subscribed
			subscribe := true
			if value != nil {
				b, ok := value.(bool)
				if !ok {
					return mlevelerrors.NewSetErrorInvalidArguments("isSubscribed must be a boolean or null", "isSubscribed"), nil
				}
				subscribe = b
			}
			cur := store.Subscription{Key: store.SubscriptionKey(ja.user, mb.ID)}
			err := tx.Get(&cur)
			if err != nil && !errors.Is(err, bstore.ErrAbsent) {
				return nil, fmt.Errorf("getting subscription: %w", err)
			}
			subscribed := err == nil
			//setting the current value is an idempotent no-op
			if subscribe == subscribed {
				continue
			}
			if subscribe {
				subscriptionChange = 1
			} else {
				subscriptionChange = -1
			}

		case path == "/sharedWith":
			if mb.Owner != ja.user {
				return mlevelerrors.NewSetErrorNotFound(), nil
			}
			rightsMap, ok := value.(map[string]interface{})
			if !ok {
				return mlevelerrors.NewSetErrorInvalidArguments("sharedWith must be a map of principal to right codes", "sharedWith"), nil
			}
			newRights := map[string]string{}
			for principal, list := range rightsMap {
				r, setErr := parseRightsList(list, false)
				if setErr != nil {
					return setErr, nil
				}
				newRights[principal] = r
			}
			mb.Rights = newRights
			mbChanged = true

		case strings.HasPrefix(path, "/sharedWith/"):
			if hasSharedWithReset {
				return mlevelerrors.NewSetErrorInvalidPatch("cannot reset sharedWith and patch individual principals in the same patch"), nil
			}
			if mb.Owner != ja.user {
				return mlevelerrors.NewSetErrorNotFound(), nil
			}
			principal := strings.TrimPrefix(path, "/sharedWith/")
			if principal == "" || strings.Contains(principal, "/") {
				return mlevelerrors.NewSetErrorInvalidPatch(fmt.Sprintf("invalid path %s", path)), nil
			}
			if mb.Rights == nil {
				mb.Rights = map[string]string{}
			}
			if value == nil {
				delete(mb.Rights, principal)
			} else {
				r, setErr := parseRightsList(value, false)
				if setErr != nil {
					return setErr, nil
				}
				mb.Rights[principal] = r
			}
			mbChanged = true

		default:
			prop := strings.TrimPrefix(path, "/")
			if i := strings.Index(prop, "/"); i >= 0 {
				prop = prop[:i]
			}
			if slices.Contains(serverSetMailboxProperties, prop) {
				return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("%s cannot be updated by the client", prop), prop), nil
			}
			return mlevelerrors.NewSetErrorInvalidArguments(fmt.Sprintf("unknown property %s", prop), prop), nil
		}
	}

	if mbChanged || subscriptionChange != 0 {
		modSeq, err := nextModSeq()
		if err != nil {
			return nil, err
		}
		mb.ModSeq = modSeq
		if err := tx.Update(&mb); err != nil {
			return nil, fmt.Errorf("updating mailbox: %w", err)
		}
	}

	switch subscriptionChange {
	case 1:
		sub := store.Subscription{
			Key:       store.SubscriptionKey(ja.user, mb.ID),
			User:      ja.user,
			MailboxID: mb.ID,
		}
		if err := tx.Insert(&sub); err != nil && !errors.Is(err, bstore.ErrUnique) {
			return nil, fmt.Errorf("inserting subscription: %w", err)
		}
	case -1:
		sub := store.Subscription{Key: store.SubscriptionKey(ja.user, mb.ID)}
		if err := tx.Delete(&sub); err != nil && !errors.Is(err, bstore.ErrAbsent) {
			return nil, fmt.Errorf("deleting subscription: %w", err)
		}
	}

	return nil, nil
}

func (ja *JAccount) destroyMailbox(tx *bstore.Tx, id basetypes.Id, createdIDs *basetypes.CreatedIDs, onDestroyRemoveEmails bool, nextModSeq func() (int64, error)) (basetypes.Id, *mlevelerrors.SetError, error) {
	mbID, setErr := resolveMailboxID(id, createdIDs)
	if setErr != nil {
		return "", setErr, nil
	}

	mb := store.Mailbox{ID: mbID}
	err := tx.Get(&mb)
	if err == bstore.ErrAbsent {
		return "", mlevelerrors.NewSetErrorNotFound(), nil
	} else if err != nil {
		return "", nil, fmt.Errorf("getting mailbox: %w", err)
	}
	if !mb.Visible(ja.user) || !mb.HasRight(ja.user, store.RightDeleteMailbox) {
		//lacking rights is indistinguishable from absence
		return "", mlevelerrors.NewSetErrorNotFound(), nil
	}
	if mb.Role != "" {
		return "", mlevelerrors.NewSetErrorInvalidArguments("cannot destroy a system mailbox"), nil
	}

	children, err := hasChildren(tx, mb.ID)
	if err != nil {
		return "", nil, err
	}
	if children {
		return "", mlevelerrors.NewSetErrorMailboxHasChild(), nil
	}

	msgCount, err := bstore.QueryTx[store.Message](tx).
		FilterNonzero(store.Message{MailboxID: mb.ID}).
		FilterEqual("Expunged", false).
		Count()
	if err != nil {
		return "", nil, fmt.Errorf("counting messages: %w", err)
	}
	if msgCount > 0 {
		if !onDestroyRemoveEmails {
			return "", mlevelerrors.NewSetErrorMailboxHasEmail(), nil
		}
		if _, err := bstore.QueryTx[store.Message](tx).
			FilterNonzero(store.Message{MailboxID: mb.ID}).
			Delete(); err != nil {
			return "", nil, fmt.Errorf("removing messages: %w", err)
		}
	}

	modSeq, err := nextModSeq()
	if err != nil {
		return "", nil, err
	}

	if err := tx.Delete(&store.Mailbox{ID: mb.ID}); err != nil {
		return "", nil, fmt.Errorf("deleting mailbox: %w", err)
	}
	if err := tx.Insert(&store.MailboxTombstone{ID: mb.ID, ModSeq: modSeq}); err != nil {
		return "", nil, fmt.Errorf("inserting tombstone: %w", err)
	}

	//all subscriptions to the mailbox go with it
	if _, err := bstore.QueryTx[store.Subscription](tx).
		FilterNonzero(store.Subscription{MailboxID: mb.ID}).
		Delete(); err != nil {
		return "", nil, fmt.Errorf("removing subscriptions: %w", err)
	}

	return basetypes.NewIdFromInt64(mb.ID), nil, nil
}
